// Package server is the thin HTTP envelope around the query layer.
//
// It owns routing, request decoding, and JSON rendering — nothing else.
// All pricing semantics live in query.
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

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/idgen"
	"github.com/hazyhaar/cjenik/kit"
	"github.com/hazyhaar/cjenik/query"
)

// Server serves the public JSON API.
type Server struct {
	queries *query.Service
	catalog *catalog.Catalog
	logger  *slog.Logger
	reqID   idgen.Generator
	router  chi.Router
}

// New creates a Server and mounts its routes.
func New(queries *query.Service, cat *catalog.Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		queries: queries,
		catalog: cat,
		logger:  logger,
		reqID:   idgen.Prefixed("req_", idgen.Default),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.contextMiddleware)
	r.Get("/v1/search", s.handleSearch)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/cities", s.handleCities)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/health", s.handleHealth)
	s.router = r
	return s
}

// Handler exposes the mounted router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// contextMiddleware enriches the request context so log lines and downstream
// calls correlate on one request ID.
func (s *Server) contextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := s.reqID()
		ctx := kit.WithRequestID(r.Context(), reqID)
		ctx = kit.WithTransport(ctx, "http")
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("request served",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, query.ErrBadRequest) {
		status = http.StatusBadRequest
	}
	s.logger.Error("request failed",
		"request_id", kit.GetRequestID(r.Context()),
		"path", r.URL.Path,
		"error", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
