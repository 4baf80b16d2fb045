// Package server provides the optional HTTP monitor for the Drona teaching
// demo: health, per-class example counts, an MJPEG view of the annotated
// feed and a WebSocket prediction stream.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/drona/internal/classify"
	"github.com/ayusman/drona/internal/dataset"
)

// Config holds the server configuration.
type Config struct {
	Dataset *dataset.Store
}

// Server represents the HTTP monitor.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	stream *StreamHandler
	hub    *PredictionHub
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		stream: NewStreamHandler(),
		hub:    NewPredictionHub(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/stream", s.stream)
	s.mux.Handle("/api/predictions", s.hub)

	if s.config.Dataset != nil {
		s.mux.HandleFunc("/api/classes", s.handleClasses)
	}
}

// PublishFrame updates the MJPEG stream with the latest annotated frame.
// Wired to the loop's OnFrame hook.
func (s *Server) PublishFrame(jpeg []byte) {
	s.stream.SetSnapshot(jpeg)
}

// BroadcastPrediction pushes a prediction to every WebSocket client.
// Wired to the loop's OnPrediction hook.
func (s *Server) BroadcastPrediction(p classify.Prediction) {
	s.hub.Broadcast(p)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleClasses handles GET requests to /api/classes, returning the
// class -> example count mapping from the dataset.
func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"classes": s.config.Dataset.Counts(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
