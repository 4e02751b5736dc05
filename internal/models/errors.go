package models

import (
	"encoding/json"
	"net/http"
)

// ErrorKind classifies a failed analysis request. The kind decides the HTTP
// status and whether the client-facing message may be sanitized.
type ErrorKind string

const (
	ErrValidation ErrorKind = "ValidationError"
	ErrGuard      ErrorKind = "GuardError"
	ErrGeneration ErrorKind = "GenerationError"
	ErrTimeout    ErrorKind = "TimeoutError"
	ErrExecution  ErrorKind = "ExecutionError"
)

// AppError is the single error type crossing component boundaries. Message
// always holds the raw text; ClientMessage applies production sanitization.
type AppError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func (e *AppError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Status maps the error kind to the HTTP status of the response.
func (e *AppError) Status() int {
	switch e.Kind {
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrGuard:
		return http.StatusForbidden
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the message the client may see. Guard and validation
// messages describe policy, not data, so they are never redacted. Execution
// and generation messages can leak schema or driver internals and are
// replaced by a generic string in production.
func (e *AppError) ClientMessage(production bool) string {
	if !production {
		return e.Message
	}
	switch e.Kind {
	case ErrExecution:
		return "query execution failed"
	case ErrGeneration:
		return "SQL generation failed"
	default:
		return e.Message
	}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Kind: ErrValidation, Message: msg}
}

func NewGuardError(msg string, violations []string) *AppError {
	e := &AppError{Kind: ErrGuard, Message: msg}
	if len(violations) > 0 {
		e.Details = map[string]any{"violations": violations}
	}
	return e
}

func NewGenerationError(msg string) *AppError {
	return &AppError{Kind: ErrGeneration, Message: msg}
}

func NewTimeoutError(msg string) *AppError {
	return &AppError{Kind: ErrTimeout, Message: msg}
}

func NewExecutionError(msg string) *AppError {
	return &AppError{Kind: ErrExecution, Message: msg}
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, AnalysisResponse{OK: false, Error: message, ErrorType: string(ErrValidation)})
}
