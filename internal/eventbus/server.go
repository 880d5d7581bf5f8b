// SPDX-License-Identifier: Apache-2.0

package eventbus

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server exposes a Bus over WebSocket at GET /events: one JSON-encoded
// nabu.Event per text frame, no authentication (spec's expanded §6 —
// this is a local debugging feed, not a production API).
type Server struct {
	bus      *Bus
	upgrader websocket.Upgrader
}

// NewServer wraps bus for WebSocket delivery.
func NewServer(bus *Bus) *Server {
	return &Server{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the /events http.Handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveEvents)
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("eventbus: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
