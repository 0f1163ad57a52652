// Package docserver exposes an in-memory document store over HTTP so worker
// processes can type into one shared document.
package docserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/user/scribe/internal/document"
	"github.com/user/scribe/internal/document/memdoc"
)

// Server is the HTTP server for shared documents.
type Server struct {
	store      *memdoc.Store
	httpServer *http.Server
	router     chi.Router
	hub        *hub
	relay      *Relay
	reg        *prometheus.Registry
	metrics    *serverMetrics
	unsub      func()
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry registers the server metrics on reg and serves reg at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.reg = reg }
}

// WithRedis relays every applied op to Redis pub/sub.
func WithRedis(rdb *redis.Client) Option {
	return func(s *Server) { s.relay = NewRelay(rdb) }
}

// New creates a Server over store. Call Close to release its subscription.
func New(store *memdoc.Store, bindAddr string, opts ...Option) *Server {
	srv := &Server{store: store}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.reg == nil {
		srv.reg = prometheus.NewRegistry()
	}
	srv.metrics = newServerMetrics(srv.reg)
	srv.hub = newHub(srv.metrics)
	srv.unsub = store.Subscribe(srv.onOp)
	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:              bindAddr,
		Handler:           h2c.NewHandler(srv.router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/docs", s.handleCreateDoc)
		r.Get("/docs/{id}", s.handleGetDoc)
		r.Get("/docs/{id}/content", s.handleContent)
		r.Get("/docs/{id}/paragraphs", s.handleParagraphs)
		r.Post("/docs/{id}/markers", s.handleInsertMarker)
		r.Get("/docs/{id}/markers/{marker}", s.handleMarkerPosition)
		r.Post("/docs/{id}/text", s.handleInsertText)
		r.Post("/docs/{id}/insert-before", s.handleInsertBefore)

		r.Post("/maps", s.handleCreateMap)
		r.Get("/maps/{id}", s.handleGetMap)
		r.Get("/maps/{id}/keys/{key}", s.handleGetKey)
		r.Put("/maps/{id}/keys/{key}", s.handleSetKey)
	})

	r.Get("/ws/docs/{id}", s.handleWatch)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) onOp(op memdoc.Op) {
	s.metrics.opsApplied.WithLabelValues(op.Type).Inc()
	s.hub.broadcast(op)
	if s.relay != nil {
		s.relay.Publish(op)
	}
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	slog.Info("document server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("document server starting", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and disconnects watchers.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("document server shutting down")
	s.Close()
	return s.httpServer.Shutdown(ctx)
}

// Close detaches the server from the store and closes watcher connections.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.hub.closeAll()
	if s.relay != nil {
		s.relay.Close()
	}
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeStoreError maps store errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, memdoc.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_POSITION")
	case errors.Is(err, memdoc.ErrDuplicateMarker):
		writeError(w, http.StatusConflict, err.Error(), "DUPLICATE_MARKER")
	case errors.Is(err, memdoc.ErrClosed):
		writeError(w, http.StatusGone, err.Error(), "CLOSED")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL")
	}
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
