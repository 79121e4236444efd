// Package httpapi exposes the task/watcher/settings control surface
// over HTTP plus a progress websocket: a chi router with
// RequestID/RealIP/Recoverer middleware, a zerolog request logger, and
// optional permissive CORS for a local frontend.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kaelin-dev/subtrans/internal/progress"
	"github.com/kaelin-dev/subtrans/internal/scheduler"
	"github.com/kaelin-dev/subtrans/internal/store"
	"github.com/kaelin-dev/subtrans/internal/watcher"
)

type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	EnableCORS   bool
}

func DefaultConfig() Config {
	return Config{Host: "127.0.0.1", Port: 8080, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, EnableCORS: true}
}

type Server struct {
	store  *store.Store
	sched  *scheduler.Scheduler
	sup    *watcher.Supervisor
	bus    *progress.Bus
	logger zerolog.Logger
	cfg    Config

	router   chi.Router
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

func NewServer(cfg Config, st *store.Store, sched *scheduler.Scheduler, sup *watcher.Supervisor, bus *progress.Bus, logger zerolog.Logger) *Server {
	s := &Server{store: st, sched: sched, sup: sup, bus: bus, logger: logger, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggerMiddleware)
	if cfg.EnableCORS {
		r.Use(s.corsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Get("/stats", s.handleTaskStats)
		r.Post("/directory", s.handleCreateTasksFromDirectory)
		r.Post("/pause-all", s.handlePauseAll)
		r.Post("/pause-selected", s.handlePauseSelected)
		r.Delete("/delete-all", s.handleDeleteAll)
		r.Post("/delete-selected", s.handleDeleteSelected)
		r.Get("/{id}", s.handleGetTask)
		r.Delete("/{id}", s.handleDeleteTask)
		r.Post("/{id}/retry", s.handleRetryTask)
	})
	r.Route("/api/files", func(r chi.Router) {
		r.Get("/browse", s.handleBrowseFiles)
		r.Get("/subtitle-tracks", s.handleSubtitleTracks)
	})
	r.Route("/api/watchers", func(r chi.Router) {
		r.Get("/", s.handleListWatchers)
		r.Post("/", s.handleCreateWatcher)
		r.Delete("/{id}", s.handleDeleteWatcher)
		r.Post("/{id}/toggle", s.handleToggleWatcher)
	})
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", s.handleGetSettings)
		r.Put("/", s.handlePutSettings)
		r.Get("/llm-providers", s.handleLLMProviders)
		r.Get("/languages", s.handleLanguages)
		r.Post("/test-llm", s.handleTestLLM)
	})
	r.Get("/ws/progress", s.handleProgressWebSocket)

	s.router = r
	return s
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

