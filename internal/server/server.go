// Package server exposes the variant registry over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ayemaqu/pedrisk/internal/config"
	"github.com/ayemaqu/pedrisk/internal/redact"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

const robotsTxt = "User-agent: *\nDisallow: /\n"

// Server wraps the HTTP server components for pedrisk.
type Server struct {
	mux      *http.ServeMux
	cfg      config.ServerConfig
	registry *variant.Registry
	inflight chan struct{}
}

// New builds a server over reg. Limits come from cfg.
func New(cfg config.ServerConfig, reg *variant.Registry) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		registry: reg,
	}
	if cfg.MaxInFlight > 0 {
		s.inflight = make(chan struct{}, cfg.MaxInFlight)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /robots.txt", handleRobots)
	s.mux.HandleFunc("GET /v1/variants", s.handleListVariants)
	s.mux.HandleFunc("GET /v1/variants/{name}", s.handleGetVariant)
	s.mux.Handle("POST /v1/variants/{name}/predict", s.limit(http.HandlerFunc(s.handlePredict)))
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is cancelled, then drains in-flight
// requests for up to the configured shutdown timeout.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       millis(s.cfg.ReadTimeoutMs),
		WriteTimeout:      millis(s.cfg.WriteTimeoutMs),
	}

	errCh := make(chan error, 1)
	go func() {
		redact.Logf("pedrisk listening addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := millis(s.cfg.ShutdownTimeoutMs)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// limit rejects requests with 429 once MaxInFlight predictions are running.
func (s *Server) limit(next http.Handler) http.Handler {
	if s.inflight == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.inflight <- struct{}{}:
			defer func() { <-s.inflight }()
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusTooManyRequests, "too many in-flight requests", "overloaded", "")
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

func handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(robotsTxt))
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
