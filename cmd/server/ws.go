package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope wraps every message pushed to console subscribers.
type Envelope struct {
	Type    string `json:"type"` // "batch" or "summary"
	RunID   string `json:"runId"`
	Payload any    `json:"payload"`
}

const (
	// subscriberBuffer bounds how far behind a slow console may fall
	// before it is dropped.
	subscriberBuffer = 64
	wsWriteTimeout   = 10 * time.Second
)

// subscriber is one connected console page. All writes to the connection
// happen on its writeLoop goroutine; gorilla/websocket permits at most one
// concurrent writer per connection.
type subscriber struct {
	conn *websocket.Conn
	send chan Envelope
}

// Hub fans validation run progress out to connected console pages.
// Broadcast never blocks and never writes a connection directly: envelopes
// are queued per subscriber, and a subscriber whose queue is full or whose
// writes fail is dropped rather than blocking a run.
type Hub struct {
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// HandleWS upgrades a console connection and registers it for run events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] Websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan Envelope, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	log.Printf("[INFO] Console subscriber connected (%d total)", count)

	go sub.writeLoop(h)

	// Drain (and discard) client messages so pings are answered and
	// closure is noticed.
	go func() {
		defer h.drop(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop is the sole writer for one connection. It exits when the send
// queue is closed by drop or when a write fails.
func (s *subscriber) writeLoop(h *Hub) {
	defer h.drop(s)
	for envelope := range s.send {
		if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return
		}
		if err := s.conn.WriteJSON(envelope); err != nil {
			log.Printf("[WARN] Dropping console subscriber: %v", err)
			return
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	h.dropLocked(s)
	h.mu.Unlock()
}

// dropLocked removes a subscriber, closes its queue so writeLoop exits, and
// closes the connection so a blocked write unwedges. Idempotent; callers
// hold h.mu.
func (h *Hub) dropLocked(s *subscriber) {
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.send)
	_ = s.conn.Close()
}

// Broadcast queues one envelope for every subscriber. A subscriber whose
// queue is full has stopped consuming and is dropped; the run producing the
// event is never delayed.
func (h *Hub) Broadcast(envelope Envelope) {
	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.send <- envelope:
		default:
			log.Printf("[WARN] Dropping console subscriber that stopped reading")
			h.dropLocked(sub)
		}
	}
	h.mu.Unlock()
}
