// Package http exposes users, categories and records as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/middleware/ratelimit"
	"tracker/internal/middleware/security"
	"tracker/internal/middleware/trace"
	"tracker/internal/store"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Users      UserStore
	Categories CategoryStore
	Records    RecordStore
	Health     store.Pinger
	Logger     *log.Logger

	// RateLimitPerMinute caps requests per client; zero uses the limiter default.
	RateLimitPerMinute int
}

type Server struct {
	http.Server

	deps        Deps
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		deps:        deps,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:    security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)

	users := namedHandlers[core.User]{store: deps.Users, singular: "user", plural: "users"}
	mux.HandleFunc("GET /users", users.list)
	mux.HandleFunc("POST /users", users.create)
	mux.HandleFunc("GET /users/{id}", users.get)
	mux.HandleFunc("DELETE /users/{id}", users.delete)

	categories := namedHandlers[core.Category]{store: deps.Categories, singular: "category", plural: "categories"}
	mux.HandleFunc("GET /categories", categories.list)
	mux.HandleFunc("POST /categories", categories.create)
	mux.HandleFunc("GET /categories/{id}", categories.get)
	mux.HandleFunc("DELETE /categories/{id}", categories.delete)

	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("POST /records", s.handleCreateRecord)
	mux.HandleFunc("GET /records/{id}", s.handleGetRecord)
	mux.HandleFunc("DELETE /records/{id}", s.handleDeleteRecord)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError().Write(w)
	})

	var handler http.Handler = log.ComponentMiddleware(log.ComponentHTTP)(mux)
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the listener.
// Only the first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests).Write(w)
}
