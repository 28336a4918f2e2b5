// Package events broadcasts Scheduler state transitions to websocket
// subscribers. It is a transport, not a rendered view: subscribers decode
// the JSON frames themselves.
package events

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one node or workload transition.
type Event struct {
	Kind       string    `json:"kind"`
	WorkloadID string    `json:"workload_id,omitempty"`
	NodeKey    string    `json:"node_key,omitempty"`
	At         time.Time `json:"at"`
}

// Hub fans out events to any number of websocket subscribers. Publish is
// non-blocking: a subscriber whose buffer is full misses that event rather
// than stalling the publisher; it stays subscribed.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]bool
	upgrader    websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish delivers ev to every current subscriber, best-effort.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop this event for them rather than block.
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subscribers[ch] = true
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

// ServeWS upgrades the request to a websocket and streams events to it
// until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	for ev := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
