// Package web serves the task dashboard API for the signed-in user.
package web

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"dcc/internal/assistant"
	"dcc/internal/auth"
	"dcc/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Store     service.Service
	User      auth.User
	Assistant *assistant.Assistant
	Log       *log.Logger

	// Session, when set, replaces User: the server follows its sign-in state
	// and serves the API only while someone is signed in.
	Session Session

	// BasePath is the URL prefix every route is mounted under. Empty means "/".
	BasePath string

	// Now is the clock for new task positions. Nil means time.Now.
	Now func() time.Time
}

// Server is the dashboard HTTP server.
type Server struct {
	store     service.Service
	assistant *assistant.Assistant
	log       *log.Logger
	now       func() time.Time
	router    *gin.Engine

	session     Session
	stopSession func()

	mu        sync.RWMutex
	user      auth.User
	signedIn  bool
	signedOut chan struct{}
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Log
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	s := &Server{
		store:     opts.Store,
		assistant: opts.Assistant,
		log:       logger,
		now:       now,
		router:    router,
		session:   opts.Session,
		signedOut: make(chan struct{}),
	}
	if s.session != nil {
		close(s.signedOut)
		s.stopSession = s.session.Subscribe(s.setUser)
	} else {
		s.user = opts.User
		s.signedIn = true
	}

	root := router.Group(normalizeBasePath(opts.BasePath))
	root.GET("/healthz", s.handleHealth)

	root.GET("/api/session", s.handleSession)
	root.POST("/api/logout", s.handleLogout)

	api := root.Group("/api", s.requireUser)
	{
		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/stream", s.handleStream)
		api.POST("/tasks", s.handleCreateTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/reorder", s.handleReorder)
		api.POST("/parse", s.handleParse)
		api.GET("/apikey", s.handleGetAPIKey)
		api.PUT("/apikey", s.handleSetAPIKey)
		api.DELETE("/apikey", s.handleDeleteAPIKey)
		api.GET("/categories", s.handleCategories)
	}

	return s
}

// Close stops following the session. It is safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	stop := s.stopSession
	s.stopSession = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	if user, ok, _ := s.current(); ok {
		s.log.Printf("serving dashboard for %s on %s", user.ID, addr)
	} else {
		s.log.Printf("serving dashboard on %s (signed out)", addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/"
	}
	return "/" + strings.Trim(p, "/")
}
