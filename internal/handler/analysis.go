package handler

import (
	"encoding/json"
	"net/http"

	"github.com/queryguard/queryguard/internal/middleware"
	"github.com/queryguard/queryguard/internal/models"
	"github.com/queryguard/queryguard/internal/service"
)

// AnalysisHandler handles POST /api/v1/analysis.
type AnalysisHandler struct {
	svc        *service.Analysis
	production bool
	always200  bool
}

func NewAnalysisHandler(svc *service.Analysis, production, always200 bool) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, production: production, always200: always200}
}

// Analyze runs one guarded call. Malformed JSON is a plain 400; everything
// past decoding goes through the classified error envelope.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	traceID := middleware.TraceIDFrom(r.Context())

	if err := req.Validate(); err != nil {
		h.writeFailure(w, models.NewValidationError(err.Error()), "", traceID)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())

	data, appErr := h.svc.Analyze(r.Context(), identity, &req, traceID)
	if appErr != nil {
		sql := ""
		if data != nil {
			sql = data.SQL
		}
		h.writeFailure(w, appErr, sql, traceID)
		return
	}

	models.WriteJSON(w, http.StatusOK, models.AnalysisResponse{OK: true, Data: data})
}

// writeFailure emits the error envelope. In always-200 mode the HTTP status
// stays 200 and clients dispatch on the ok flag; the envelope body is
// identical either way.
func (h *AnalysisHandler) writeFailure(w http.ResponseWriter, appErr *models.AppError, sql, traceID string) {
	status := appErr.Status()
	if h.always200 {
		status = http.StatusOK
	}
	models.WriteJSON(w, status, models.AnalysisResponse{
		OK:        false,
		Error:     appErr.ClientMessage(h.production),
		ErrorType: string(appErr.Kind),
		Details:   appErr.Details,
		SQL:       sql,
		TraceID:   traceID,
	})
}
