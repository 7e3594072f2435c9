package http

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fixora/dashboard/internal/dashboard"
	"github.com/fixora/dashboard/internal/logger"
)

// Event names sent on a session stream
const (
	EventConnected = "connected"
	EventState     = "state"
	EventClosed    = "closed"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Time      int64       `json:"time"`
}

// Streamer pushes session state changes to browsers over Server-Sent Events
type Streamer struct {
	heartbeat time.Duration
	log       logger.Logger

	mu      sync.RWMutex
	clients map[string]string
}

// NewStreamer creates a new SSE streamer. A heartbeat <= 0 disables keep-alive comments.
func NewStreamer(heartbeat time.Duration, log logger.Logger) *Streamer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Streamer{
		heartbeat: heartbeat,
		log:       log,
		clients:   make(map[string]string),
	}
}

// ClientCount returns the number of connected clients
func (s *Streamer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stream writes every state of session until the client disconnects or the session stops
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, session *dashboard.Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	updates, cancel := session.Subscribe()
	defer cancel()

	s.add(clientID, session.ID())
	defer s.remove(clientID)

	ctx := r.Context()
	s.log.Debug(ctx, "Stream client connected", map[string]interface{}{
		"client_id":  clientID,
		"session_id": session.ID(),
	})

	if err := writeSSEEvent(w, EventConnected, session.ID(), map[string]interface{}{"client_id": clientID}); err != nil {
		return
	}
	flusher.Flush()

	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case st, ok := <-updates:
			if !ok {
				_ = writeSSEEvent(w, EventClosed, session.ID(), nil)
				flusher.Flush()
				return
			}
			if err := writeSSEEvent(w, EventState, session.ID(), st); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Streamer) add(clientID, sessionID string) {
	s.mu.Lock()
	s.clients[clientID] = sessionID
	s.mu.Unlock()
}

func (s *Streamer) remove(clientID string) {
	s.mu.Lock()
	delete(s.clients, clientID)
	s.mu.Unlock()
}

func writeSSEEvent(w http.ResponseWriter, eventType, sessionID string, data interface{}) error {
	payload := SSEEvent{Type: eventType, SessionID: sessionID, Data: data, Time: time.Now().Unix()}
	message, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, message)
	return err
}
