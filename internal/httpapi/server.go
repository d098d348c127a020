// Package httpapi exposes the owner-facing REST API and the scheduler status.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"postsched/internal/posts"
	"postsched/internal/scheduler"
	logx "postsched/pkg/logx"
)

type Config struct {
	Addr            string
	JWTSecret       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StatusSource reports the scheduler state.
type StatusSource interface {
	Snapshot() scheduler.Snapshot
}

type Server struct {
	router    chi.Router
	log       logx.Logger
	posts     *posts.Service
	status    StatusSource
	startTime time.Time

	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config, svc *posts.Service, status StatusSource, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		router:    chi.NewRouter(),
		log:       log.With(logx.String("comp", "http")),
		posts:     svc,
		status:    status,
		startTime: time.Now(),
		cfg:       cfg,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) Handler() http.Handler { return s.router }

// SetSecret rotates the JWT signing secret; tokens signed with the old one stop verifying.
func (s *Server) SetSecret(secret string) {
	s.mu.Lock()
	s.cfg.JWTSecret = secret
	s.mu.Unlock()
}

func (s *Server) secret() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return []byte(s.cfg.JWTSecret)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/scheduler", s.handleSchedulerStatus)

		r.Route("/posts", func(r chi.Router) {
			r.Post("/", s.handleCreatePost)
			r.Get("/", s.handleListPosts)
			r.Get("/{id}", s.handleGetPost)
			r.Put("/{id}", s.handleUpdatePost)
			r.Delete("/{id}", s.handleCancelPost)
		})

		r.Route("/social-accounts", func(r chi.Router) {
			r.Post("/", s.handleLinkAccount)
			r.Get("/", s.handleListAccounts)
			r.Delete("/{id}", s.handleUnlinkAccount)
		})
	})
}

// Serve listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return s.serveOn(ctx, ln, cfg)
}

func (s *Server) serveOn(ctx context.Context, ln net.Listener, cfg Config) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
		return err
	}
	s.log.Info("http stopped")
	return nil
}
