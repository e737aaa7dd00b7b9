// ws/hub.go
package ws

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
)

// Event types sent to subscribers.
const (
	NoteCreated = "note_created"
	NoteUpdated = "note_updated"
	NoteDeleted = "note_deleted"
)

type Message struct {
	Type string       `json:"type"`
	Note *domain.Note `json:"note,omitempty"`
}

// Conn is the part of a websocket connection the hub uses.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type subscription struct {
	owner string
	conn  Conn
}

type envelope struct {
	owner string
	msg   Message
}

// Hub fans note events out to the connections of the note's owner. A
// connection never receives events about another identity's notes.
type Hub struct {
	clients    map[string]map[Conn]struct{}
	broadcast  chan envelope
	register   chan subscription
	unregister chan subscription
	done       chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[Conn]struct{}),
		broadcast:  make(chan envelope, 256),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Run serves the hub until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for owner, conns := range h.clients {
				for conn := range conns {
					conn.Close()
				}
				delete(h.clients, owner)
			}
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			conns, ok := h.clients[sub.owner]
			if !ok {
				conns = make(map[Conn]struct{})
				h.clients[sub.owner] = conns
			}
			conns[sub.conn] = struct{}{}
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.remove(sub)

		case env := <-h.broadcast:
			h.mu.RLock()
			var failed []Conn
			for conn := range h.clients[env.owner] {
				if err := conn.WriteJSON(env.msg); err != nil {
					h.log.Warn().Err(err).Str("owner", env.owner).Msg("websocket write error")
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.remove(subscription{owner: env.owner, conn: conn})
			}
		}
	}
}

func (h *Hub) remove(sub subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.clients[sub.owner]
	if _, ok := conns[sub.conn]; !ok {
		return
	}
	delete(conns, sub.conn)
	sub.conn.Close()
	if len(conns) == 0 {
		delete(h.clients, sub.owner)
	}
}

// Broadcast queues an event for ownerID's connections. It drops the event
// once the hub has stopped.
func (h *Hub) Broadcast(ownerID, msgType string, note *domain.Note) {
	select {
	case h.broadcast <- envelope{owner: ownerID, msg: Message{Type: msgType, Note: note}}:
	case <-h.done:
	}
}

func (h *Hub) Register(ownerID string, conn Conn) {
	select {
	case h.register <- subscription{owner: ownerID, conn: conn}:
	case <-h.done:
		conn.Close()
	}
}

func (h *Hub) Unregister(ownerID string, conn Conn) {
	select {
	case h.unregister <- subscription{owner: ownerID, conn: conn}:
	case <-h.done:
	}
}

// Subscribers returns how many connections ownerID has open.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

// HandleConnection registers conn for ownerID and reads from it until the
// client goes away. Incoming messages are only logged.
func (h *Hub) HandleConnection(ownerID string, conn Conn) {
	h.Register(ownerID, conn)
	defer h.Unregister(ownerID, conn)

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		if msgType, ok := msg["type"].(string); ok && msgType == "subscribe" {
			h.log.Debug().Str("owner", ownerID).Msg("client subscribed")
		}
	}
}
