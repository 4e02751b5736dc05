package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/queryguard/queryguard/internal/config"
	"github.com/queryguard/queryguard/internal/middleware"
	"github.com/queryguard/queryguard/internal/models"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

// ─── Security Headers ─────────────────────────────────────────────────────────

func TestSecurityHeaders(t *testing.T) {
	handler := middleware.SecurityHeaders(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for h, want := range headers {
		if got := rr.Header().Get(h); got != want {
			t.Errorf("header %s = %q, want %q", h, got, want)
		}
	}
}

// ─── Trace ID ─────────────────────────────────────────────────────────────────

func TestTraceIDGenerated(t *testing.T) {
	var seen string
	handler := middleware.TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.TraceIDFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	id := rr.Header().Get("X-Request-ID")
	if id == "" {
		t.Error("X-Request-ID should be generated when absent")
	}
	if seen != id {
		t.Errorf("context trace id %q != response header %q", seen, id)
	}
}

func TestTraceIDPropagated(t *testing.T) {
	handler := middleware.TraceID(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "my-trace-id-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "my-trace-id-123" {
		t.Errorf("X-Request-ID should propagate existing ID, got %q", got)
	}
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

func authConfig() *config.Config {
	return &config.Config{
		EnableAuth:   true,
		APIKeyHeader: "X-API-Key",
		Credentials: []config.Credential{
			{APIKey: "valid-key", BusinessID: 42, UserID: 7},
		},
	}
}

func TestAuthMissingKey(t *testing.T) {
	handler := middleware.Auth(authConfig())(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestAuthInvalidKey(t *testing.T) {
	handler := middleware.Auth(authConfig())(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	req.Header.Set("X-API-Key", "wrong")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestAuthResolvesIdentity(t *testing.T) {
	var identity models.Identity
	var ok bool
	handler := middleware.Auth(authConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok = middleware.IdentityFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	req.Header.Set("X-API-Key", "valid-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !ok {
		t.Fatal("identity not resolved")
	}
	if identity.BusinessID != 42 || identity.UserID != 7 {
		t.Errorf("identity = %+v, want BusinessID 42 UserID 7", identity)
	}
}

func TestAuthPublicPathBypassed(t *testing.T) {
	handler := middleware.Auth(authConfig())(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for public path", rr.Code)
	}
}

func TestAuthDisabled(t *testing.T) {
	cfg := authConfig()
	cfg.EnableAuth = false
	handler := middleware.Auth(cfg)(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rr.Code)
	}
}

// ─── Rate Limiting ────────────────────────────────────────────────────────────

func TestRateLimitEnforced(t *testing.T) {
	handler := middleware.RateLimit(2)(okHandler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "k")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after limit", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitKeysIsolated(t *testing.T) {
	handler := middleware.RateLimit(1)(okHandler)

	for _, key := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("key %s status = %d, want 200", key, rr.Code)
		}
	}
}

// ─── Recovery ─────────────────────────────────────────────────────────────────

func TestRecovery(t *testing.T) {
	handler := middleware.Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

// ─── CORS ─────────────────────────────────────────────────────────────────────

func TestCORSAllowedOrigin(t *testing.T) {
	handler := middleware.CORS(middleware.DefaultCORSConfig([]string{"https://app.example.com"}))(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	handler := middleware.CORS(middleware.DefaultCORSConfig([]string{"https://app.example.com"}))(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := middleware.CORS(middleware.DefaultCORSConfig([]string{"*"}))(okHandler)
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
}
