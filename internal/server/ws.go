package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/drona/internal/classify"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PredictionHub broadcasts live predictions via WebSocket.
type PredictionHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewPredictionHub creates a PredictionHub with no clients.
func NewPredictionHub() *PredictionHub {
	return &PredictionHub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PredictionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *PredictionHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a prediction to all connected clients.
func (h *PredictionHub) Broadcast(p classify.Prediction) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, _ := json.Marshal(map[string]any{
		"label":      p.Label,
		"confidence": p.Confidence,
		"timestamp":  time.Now().UnixMilli(),
	})

	for conn := range h.clients {
		conn.WriteMessage(websocket.TextMessage, msg)
	}
}
