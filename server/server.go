// Package server exposes the answer orchestrator over HTTP.
//
// Routes:
//
//	POST   /v1/ask      answer a question
//	GET    /v1/cache    cache size, capacity and counters
//	DELETE /v1/cache    drop every cached answer
//	GET    /v1/history  recent conversation log entries
//	GET    /healthz, /readyz, /health, /health/{name}
//	GET    /metrics     when a metrics handler is configured
//
// The /v1 routes sit behind auth.Middleware; health endpoints and metrics do not.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/ragcache/answer"
	"github.com/jonwraymond/ragcache/auth"
	"github.com/jonwraymond/ragcache/cache"
	"github.com/jonwraymond/ragcache/convlog"
	"github.com/jonwraymond/ragcache/health"
	"github.com/jonwraymond/ragcache/observe"
)

// Answerer answers questions with or without the cache.
type Answerer interface {
	Ask(ctx context.Context, req answer.Request) (answer.Result, error)
	AskUncached(ctx context.Context, req answer.Request) (answer.Result, error)
}

// CacheAdmin is the cache surface the API reports on and clears.
type CacheAdmin interface {
	Info() cache.Info
	Stats() cache.Stats
	Clear(ctx context.Context)
}

// History is the conversation log.
type History interface {
	Log(ctx context.Context, e convlog.Entry) (int64, error)
	Recent(ctx context.Context, limit int) ([]convlog.Entry, error)
}

// Deps are the collaborators behind the API. Answerer is required;
// a nil History disables logging and /v1/history, a nil Cache disables
// /v1/cache, and a nil Health skips the health endpoints.
type Deps struct {
	Answerer      Answerer
	Cache         CacheAdmin
	History       History
	Health        *health.Aggregator
	Authenticator auth.Authenticator
	Logger        observe.Logger
	// Metrics serves GET /metrics, e.g. promhttp.Handler().
	Metrics http.Handler
	// RequestTimeout bounds each /v1 request. Zero means no bound.
	RequestTimeout time.Duration
}

// ErrNilAnswerer is returned by New without an Answerer.
var ErrNilAnswerer = errors.New("server: answerer is nil")

// Server routes HTTP requests to its Deps.
type Server struct {
	deps   Deps
	router *chi.Mux
}

// New constructs a Server with middleware and routes configured.
func New(deps Deps) (*Server, error) {
	if deps.Answerer == nil {
		return nil, ErrNilAnswerer
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}
	deps.Logger = deps.Logger.With(observe.F("component", "server"))

	s := &Server{deps: deps, router: chi.NewRouter()}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	if deps.Health != nil {
		health.Mount(s.router, deps.Health)
	}
	if deps.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(deps.Authenticator, deps.Logger))
		if deps.RequestTimeout > 0 {
			r.Use(middleware.Timeout(deps.RequestTimeout))
		}
		r.Post("/ask", s.handleAsk)
		if deps.Cache != nil {
			r.Get("/cache", s.handleCacheInfo)
			r.Delete("/cache", s.handleCacheClear)
		}
		if deps.History != nil {
			r.Get("/history", s.handleHistory)
		}
	})
	return s, nil
}

// Handler exposes the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down,
// waiting up to grace for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info(ctx, "listening", observe.F("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger copies chi's request ID into the observe context and logs
// each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = observe.WithRequestID(ctx, id)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.deps.Logger.Debug(ctx, "request",
			observe.F("method", r.Method),
			observe.F("path", r.URL.Path),
			observe.F("status", ww.Status()),
			observe.F("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}
