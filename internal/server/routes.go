package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/queryguard/queryguard/internal/audit"
	"github.com/queryguard/queryguard/internal/catalog"
	"github.com/queryguard/queryguard/internal/executor"
	"github.com/queryguard/queryguard/internal/generator"
	"github.com/queryguard/queryguard/internal/handler"
	"github.com/queryguard/queryguard/internal/middleware"
	"github.com/queryguard/queryguard/internal/service"
	"github.com/queryguard/queryguard/internal/sqlparse"
)

func (s *Server) setupRoutes(pool *pgxpool.Pool) (http.Handler, error) {
	cfg := s.cfg

	// ─── Pipeline ───────────────────────────────────────────────────────────────
	cat := catalog.New(pool)
	exec := executor.New(pool, executor.Config{
		SearchPath:    "public",
		LockTimeoutMs: cfg.Policy.LockTimeoutMs,
		IdleInTxMs:    cfg.Policy.IdleInTxTimeoutMs,
		WorkMem:       cfg.Policy.WorkMem,
	})

	var recorder *audit.Recorder
	if cfg.EnableAuditLogging {
		recorder = audit.NewRecorder(pool)
	}

	var gen generator.Generator
	if cfg.AnthropicAPIKey != "" {
		gen = generator.NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel,
			cfg.AnthropicBaseURL, cfg.Policy.TenantParam)
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - question endpoint disabled")
	}

	svc, err := service.NewAnalysis(cfg, sqlparse.PostgresParser{}, cat, exec, recorder, gen)
	if err != nil {
		return nil, err
	}

	log.Info().
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.Credentials) > 0).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Bool("generator_enabled", gen != nil).
		Bool("always_200", cfg.Always200OnErrors).
		Int("allowed_tables", len(cfg.Policy.AllowedTables)).
		Msg("service configuration")
	if cfg.EnableAuth && len(cfg.Credentials) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no credentials configured - all API requests will be rejected")
	}

	// ─── Handlers ───────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(pool, gen != nil)
	analysisH := handler.NewAnalysisHandler(svc, cfg.Production(), cfg.Always200OnErrors)
	tablesH := handler.NewTablesHandler(svc)

	// ─── Router ─────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.TraceID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)

	r.Group(func(r chi.Router) {
		if cfg.EnableAuth {
			r.Use(middleware.Auth(cfg))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute))

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/analysis", analysisH.Analyze)
			r.Get("/tables", tablesH.ListTables)
			r.Get("/tables/{table}", tablesH.GetTable)
		})
	})

	return r, nil
}
