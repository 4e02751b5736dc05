package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/queryguard/queryguard/internal/config"
)

type Server struct {
	cfg  *config.Config
	http *http.Server
	pool *pgxpool.Pool
}

func New(cfg *config.Config, pool *pgxpool.Pool) (*Server, error) {
	s := &Server{cfg: cfg, pool: pool}

	routes, err := s.setupRoutes(pool)
	if err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      routes,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// the connection pool.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("addr", s.http.Addr).Msg("server listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.pool.Close()
		log.Info().Msg("connection pool closed")
		return err
	case err := <-errCh:
		return err
	}
}
