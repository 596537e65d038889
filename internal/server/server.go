// Package server exposes the admin HTTP endpoints: health, Prometheus
// metrics and the live event feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"modbot/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Addr    string
	Version string
	Status  *Status
	Metrics *metrics.Collector // nil = no /metrics
	Feed    http.Handler       // nil = no /events
	Logger  *slog.Logger
}

type Server struct {
	cfg     Config
	started time.Time
	logger  *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Status == nil {
		cfg.Status = NewStatus()
	}
	return &Server{cfg: cfg, started: time.Now(), logger: cfg.Logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth())
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler())
	}
	if s.cfg.Feed != nil {
		r.Handle("/events", s.cfg.Feed)
	}
	return r
}

// HealthResponse is the body of /healthz. Status is "degraded" while any
// platform is disconnected.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime"`
	Platforms []PlatformStatus `json:"platforms"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:    "ok",
			Version:   s.cfg.Version,
			Uptime:    time.Since(s.started).Round(time.Second).String(),
			Platforms: s.cfg.Status.Snapshot(),
		}
		for _, p := range resp.Platforms {
			if !p.Connected {
				resp.Status = "degraded"
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Debug("health response not written", "err", err)
		}
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("admin server starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("admin server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("admin server: %w", err)
	}
}
