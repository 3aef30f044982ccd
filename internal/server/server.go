// Package server exposes the enrichment pipeline over HTTP for the
// dashboard. Uploaded tables live in memory, one session per upload.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/tabsense/pkg/tabsense"
	"github.com/cognicore/tabsense/pkg/tabsense/session"
)

// Session housekeeping.
const (
	SessionTTL   = 2 * time.Hour
	pruneEvery   = 5 * time.Minute
	shutdownWait = 5 * time.Second
)

// Server is the tabsense HTTP API.
type Server struct {
	engine   *tabsense.Engine
	sessions *session.Registry
	logger   *zap.Logger
	handler  http.Handler
}

// New builds a Server around an Engine. The Engine's configuration
// supplies the listen address, CORS origins and upload limits.
func New(engine *tabsense.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		sessions: session.NewRegistry(),
		logger:   logger,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	cfg := s.engine.Config().Server

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/select", s.selectColumns)
			r.Post("/sentiment", s.sentiment)
			r.Post("/tags", s.tags)
			r.Post("/summary", s.summary)
			r.Post("/insights", s.insights)
			r.Get("/export", s.export)
		})
	})
	r.Get("/api/cache", s.cacheStats)
	r.Delete("/api/cache", s.purgeCache)
	return r
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.engine.Config().Server.Addr
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.logger.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		ticker := time.NewTicker(pruneEvery)
		defer ticker.Stop()
		for {
			select {
			case <-egctx.Done():
				return nil
			case <-ticker.C:
				if n := s.sessions.Prune(SessionTTL); n > 0 {
					s.logger.Info("pruned idle sessions", zap.Int("count", n))
				}
			}
		}
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
