package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/queryguard/queryguard/internal/catalog"
	"github.com/queryguard/queryguard/internal/config"
	"github.com/queryguard/queryguard/internal/executor"
	"github.com/queryguard/queryguard/internal/handler"
	"github.com/queryguard/queryguard/internal/models"
	"github.com/queryguard/queryguard/internal/service"
	"github.com/queryguard/queryguard/internal/sqlparse"
)

type stubColumns struct{}

func (stubColumns) Columns(_ context.Context, _, table string) ([]catalog.Column, error) {
	return []catalog.Column{
		{Name: "id", DataType: "bigint"},
		{Name: "business_id", DataType: "bigint"},
		{Name: "created_at", DataType: "timestamp with time zone"},
	}, nil
}

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ string, _ []any, _ time.Duration, _ int, _ bool) (*executor.Result, error) {
	return &executor.Result{}, nil
}

func newHandler(t *testing.T, always200 bool) *handler.AnalysisHandler {
	t.Helper()
	cfg := &config.Config{Environment: "test", Policy: config.DefaultPolicy()}
	svc, err := service.NewAnalysis(cfg, sqlparse.PostgresParser{}, stubColumns{}, stubRunner{}, nil, nil)
	if err != nil {
		t.Fatalf("NewAnalysis error: %v", err)
	}
	return handler.NewAnalysisHandler(svc, false, always200)
}

func post(t *testing.T, h *handler.AnalysisHandler, body string) (*httptest.ResponseRecorder, models.AnalysisResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Analyze(rr, req)

	var resp models.AnalysisResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return rr, resp
}

// ─── Envelope ─────────────────────────────────────────────────────────────────

func TestAnalyzeHandlerBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader("{nope"))
	rr := httptest.NewRecorder()
	newHandler(t, false).Analyze(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestAnalyzeHandlerShapeValidation(t *testing.T) {
	rr, resp := post(t, newHandler(t, false), `{"question": "q", "sql": "SELECT 1"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
	if resp.OK || resp.ErrorType != string(models.ErrValidation) {
		t.Errorf("resp = %+v, want validation failure envelope", resp)
	}
}

func TestAnalyzeHandlerGuardRejection(t *testing.T) {
	rr, resp := post(t, newHandler(t, false), `{"sql": "DELETE FROM public.documents"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
	if resp.OK || resp.ErrorType != string(models.ErrGuard) {
		t.Errorf("resp = %+v, want guard failure envelope", resp)
	}
	if resp.Details == nil {
		t.Error("guard rejection missing violation details")
	}
}

func TestAnalyzeHandlerSuccess(t *testing.T) {
	rr, resp := post(t, newHandler(t, false),
		`{"sql": "SELECT d.id FROM public.documents d WHERE d.business_id = :business_id"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (resp %+v)", rr.Code, resp)
	}
	if !resp.OK || resp.Data == nil {
		t.Fatalf("resp = %+v, want ok envelope", resp)
	}
	if resp.Data.SQL == "" {
		t.Error("data.sql empty")
	}
}

// ─── Always-200 Mode ──────────────────────────────────────────────────────────

func TestAnalyzeHandlerAlways200(t *testing.T) {
	rr, resp := post(t, newHandler(t, true), `{"sql": "DELETE FROM public.documents"}`)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 in always-200 mode", rr.Code)
	}
	if resp.OK {
		t.Error("ok = true for rejected statement")
	}
	if resp.ErrorType != string(models.ErrGuard) {
		t.Errorf("error_type = %q, want GuardError", resp.ErrorType)
	}
}
