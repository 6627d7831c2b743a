// Package server exposes the tracked sessions over REST and a
// WebSocket event stream, and optionally serves a static frontend.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dsaito/agentboard/internal/bus"
	"github.com/dsaito/agentboard/internal/config"
	"github.com/dsaito/agentboard/internal/session"
)

// Server is the HTTP server over one session registry.
type Server struct {
	mu       sync.RWMutex
	cfg      config.Config
	registry *session.Registry
	bus      *bus.Bus
	mux      *http.ServeMux
	httpSrv  *http.Server
}

// New creates a new Server.
func New(cfg config.Config, registry *session.Registry, b *bus.Bus) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		bus:      b,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleGetMessages)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	// WebSocket: long-lived, no timeout wrapping.
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.cfg.FrontendDir != "" {
		s.mux.Handle("/", http.HandlerFunc(s.handleSPA))
	}
}

// handleSPA serves the static frontend, falling back to index.html
// for client-side routes.
func (s *Server) handleSPA(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	full := filepath.Join(s.cfg.FrontendDir, filepath.Clean(path))
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		http.ServeFile(w, r, full)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.FrontendDir, "index.html"))
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	srv := s.newHTTPServer()
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting server at http://%s", srv.Addr)
	return srv.ListenAndServe()
}

// newHTTPServer builds the http.Server. WriteTimeout does not bind
// /ws: the upgrader clears the connection deadlines on hijack.
func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set(
				"Access-Control-Allow-Methods", "GET, OPTIONS",
			)
			w.Header().Set(
				"Access-Control-Allow-Headers", "Content-Type",
			)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
