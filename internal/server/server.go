package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Addr string
	// Status, when set, is embedded in the /health response.
	Status func() any
}

// Server exposes health, prometheus metrics and the notification history
// feeds over HTTP.
type Server struct {
	name     string
	config   Config
	history  *History
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

func New(name string, config Config, history *History, logger *slog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		name:    name,
		config:  config,
		history: history,
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.rss", s.feedHandler(TypeRSS, "application/rss+xml; charset=utf-8"))
	mux.HandleFunc("/feed.atom", s.feedHandler(TypeAtom, "application/atom+xml; charset=utf-8"))
	mux.HandleFunc("/feed.json", s.feedHandler(TypeJSON, "application/feed+json; charset=utf-8"))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server error", "name", s.name, "error", err)
		}
	}()

	s.logger.Info("Status server listening", "name", s.name, "addr", listener.Addr().String(),
		"endpoints", "/health, /metrics, /feed.rss, /feed.atom, /feed.json")
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) feedHandler(kind FeedType, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.history.Render(kind)
		if err != nil {
			s.logger.Error("Failed to render feed", "type", kind, "error", err)
			http.Error(w, "failed to render feed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=60")
		fmt.Fprint(w, out)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"name":    s.name,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"history": s.history.Len(),
	}
	if s.config.Status != nil {
		body["last_pass"] = s.config.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
