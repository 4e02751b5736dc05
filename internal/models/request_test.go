package models_test

import (
	"testing"

	"github.com/queryguard/queryguard/internal/models"
)

func strptr(s string) *string { return &s }

// ─── Request Validation ───────────────────────────────────────────────────────

func TestAnalysisRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.AnalysisRequest
		wantErr bool
	}{
		{"question only", models.AnalysisRequest{Question: strptr("total revenue?")}, false},
		{"sql only", models.AnalysisRequest{SQL: strptr("SELECT 1")}, false},
		{"both", models.AnalysisRequest{Question: strptr("q"), SQL: strptr("SELECT 1")}, true},
		{"neither", models.AnalysisRequest{}, true},
		{"empty strings count as absent", models.AnalysisRequest{Question: strptr(""), SQL: strptr("")}, true},
		{"negative row limit", models.AnalysisRequest{SQL: strptr("SELECT 1"), RowLimit: -1}, true},
		{"negative timeout", models.AnalysisRequest{SQL: strptr("SELECT 1"), TimeoutS: -0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalysisRequestSetDefaults(t *testing.T) {
	req := models.AnalysisRequest{SQL: strptr("SELECT 1")}
	req.SetDefaults(500, 5000, 5.0, 30.0)
	if req.RowLimit != 500 {
		t.Errorf("RowLimit = %d, want 500", req.RowLimit)
	}
	if req.TimeoutS != 5.0 {
		t.Errorf("TimeoutS = %v, want 5.0", req.TimeoutS)
	}

	req = models.AnalysisRequest{SQL: strptr("SELECT 1"), RowLimit: 99999, TimeoutS: 600}
	req.SetDefaults(500, 5000, 5.0, 30.0)
	if req.RowLimit != 5000 {
		t.Errorf("RowLimit = %d, want clamp to 5000", req.RowLimit)
	}
	if req.TimeoutS != 30.0 {
		t.Errorf("TimeoutS = %v, want clamp to 30.0", req.TimeoutS)
	}
}

// ─── Error Classification ─────────────────────────────────────────────────────

func TestAppErrorStatus(t *testing.T) {
	tests := []struct {
		err  *models.AppError
		want int
	}{
		{models.NewValidationError("bad"), 422},
		{models.NewGuardError("no", nil), 403},
		{models.NewTimeoutError("slow"), 504},
		{models.NewExecutionError("boom"), 500},
		{models.NewGenerationError("boom"), 500},
	}
	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%s Status() = %d, want %d", tt.err.Kind, got, tt.want)
		}
	}
}

func TestAppErrorClientMessageSanitization(t *testing.T) {
	execErr := models.NewExecutionError(`relation "internal_secrets" does not exist`)
	if got := execErr.ClientMessage(true); got != "query execution failed" {
		t.Errorf("production execution message = %q, want redacted", got)
	}
	if got := execErr.ClientMessage(false); got != execErr.Message {
		t.Errorf("dev execution message = %q, want raw", got)
	}

	guardErr := models.NewGuardError("query violates policy", []string{"missing_tenant_scope"})
	if got := guardErr.ClientMessage(true); got != "query violates policy" {
		t.Errorf("guard message = %q, must never be redacted", got)
	}
}
