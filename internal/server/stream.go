package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// streamInterval paces the MJPEG stream at roughly 15 FPS.
const streamInterval = 66 * time.Millisecond

// StreamHandler serves the latest annotated frame as an MJPEG stream.
// The loop pushes frames in via SetSnapshot; the handler never touches the
// camera, which belongs to the loop alone.
type StreamHandler struct {
	mu       sync.RWMutex
	snapshot []byte
}

// NewStreamHandler creates a StreamHandler with no frame yet.
func NewStreamHandler() *StreamHandler {
	return &StreamHandler{}
}

// SetSnapshot replaces the frame served to stream clients.
func (h *StreamHandler) SetSnapshot(jpeg []byte) {
	h.mu.Lock()
	h.snapshot = jpeg
	h.mu.Unlock()
}

// Snapshot returns the most recent frame, or nil before the first one.
func (h *StreamHandler) Snapshot() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame := h.Snapshot()
		if frame == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		w.Write(frame)
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		time.Sleep(streamInterval)
	}
}
