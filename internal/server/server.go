// Package server is the development HTTP server: it serves the
// published output tree, the live-reload SSE endpoint, build status
// APIs, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// reloadScript is served at /livereload.js and injected into rendered
// pages while serving. It reloads the page on "reload" events and
// refreshes stylesheets in place on "refresh_asset" events.
const reloadScript = `(() => {
  const es = new EventSource("/livereload");
  es.onmessage = (msg) => {
    const ev = JSON.parse(msg.data);
    if (ev.type === "refresh_asset") {
      for (const link of document.querySelectorAll('link[rel="stylesheet"]')) {
        const href = link.getAttribute("href").split("?")[0];
        link.setAttribute("href", href + "?t=" + Date.now());
      }
      return;
    }
    location.reload();
  };
})();
`

// Option configures the server.
type Option func(*Server)

// WithHistory exposes recorded builds at /api/builds.
func WithHistory(h *history.Store) Option {
	return func(s *Server) { s.hist = h }
}

// WithMetricsHandler mounts a metrics endpoint at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server serves the output tree plus the dev APIs.
type Server struct {
	cfg            *config.Config
	builder        *build.Builder
	hub            *Hub
	hist           *history.Store
	metricsHandler http.Handler
}

// New creates a dev server over the given builder and hub.
func New(cfg *config.Config, b *build.Builder, hub *Hub, opts ...Option) *Server {
	s := &Server{cfg: cfg, builder: b, hub: hub}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/livereload", s.hub.ServeHTTP)
	r.Get("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(reloadScript))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/builds", s.handleBuilds)
	})

	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Handle("/*", http.FileServer(http.Dir(s.cfg.Output.Directory)))
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Serve.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("dev server listening", slog.String("addr", srv.Addr), logfields.Output(s.cfg.Output.Directory))

	select {
	case <-ctx.Done():
		s.hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown error", logfields.Error(err))
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// statusResponse is the /api/status document.
type statusResponse struct {
	Phase     build.Phase   `json:"phase"`
	LastError string        `json:"last_error,omitempty"`
	Report    *build.Report `json:"report,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Phase:  s.builder.Phase(),
		Report: s.builder.LastReport(),
	}
	if err := s.builder.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	entries, err := s.hist.Recent(r.Context(), 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", logfields.Error(err))
	}
}
