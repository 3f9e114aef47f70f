package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/joescharf/beacon/internal/models"
)

// streamMessage is the wire envelope pushed to websocket subscribers.
type streamMessage struct {
	Type  string        `json:"type"`
	Event *models.Event `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Hook producers and dashboards connect from arbitrary local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents upgrades the connection and pushes a new_event message for
// every successfully ingested event. The only client message it answers
// is a "ping" text frame; everything else is ignored.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.registry.Register()
	defer s.registry.Unregister(sub)
	slog.Info("stream client connected", "subscribers", s.registry.Len())

	// Reader goroutine: detects disconnects and forwards liveness probes.
	// All writes happen on the select loop below, so the connection never
	// sees concurrent writers.
	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && string(data) == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	defer slog.Info("stream client disconnected", "subscribers", s.registry.Len())

	for {
		select {
		case <-done:
			return
		case <-pings:
			if err := conn.WriteJSON(streamMessage{Type: "pong"}); err != nil {
				return
			}
		case event, ok := <-sub.C():
			if !ok {
				// Pruned by the registry after falling behind.
				return
			}
			if err := conn.WriteJSON(streamMessage{Type: "new_event", Event: event}); err != nil {
				return
			}
		}
	}
}
