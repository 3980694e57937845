package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// Conn is a live connection the hub can deliver frames to.
type Conn interface {
	ID() string
	// Send queues data without blocking. Returns false when the
	// connection is closed or its buffer is full.
	Send(data []byte) bool
	Close()
}

// Hub tracks connections and the chat rooms they joined.
type Hub struct {
	clients    map[string]Conn            // connID -> conn
	rooms      map[string]map[string]Conn // roomID -> connID -> conn
	register   chan Conn
	unregister chan Conn
	broadcast  chan *RoomMessage
	done       chan struct{}
	mu         sync.RWMutex
}

type RoomMessage struct {
	RoomID  string
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]Conn),
		rooms:      make(map[string]map[string]Conn),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		broadcast:  make(chan *RoomMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
// Broadcasts are delivered in the order they were queued.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID()] = c
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, c.ID()).Msg("client registered")

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) Register(c Conn) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes c from every room and closes it.
func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join adds c to a room and reports whether it was newly added.
func (h *Hub) Join(c Conn, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]Conn)
		h.rooms[roomID] = members
	}
	if _, ok := members[c.ID()]; ok {
		return false
	}
	members[c.ID()] = c
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, c.ID()).Str(log.FieldChatID, roomID).Msg("client joined room")
	return true
}

// Leave removes c from a room and reports whether it was a member.
func (h *Hub) Leave(c Conn, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(c.ID(), roomID)
}

// Broadcast encodes message and queues it for every member of the room.
func (h *Hub) Broadcast(ctx context.Context, roomID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return h.BroadcastRaw(ctx, roomID, data)
}

// BroadcastRaw queues data for every member of the room on this instance.
func (h *Hub) BroadcastRaw(ctx context.Context, roomID string, data []byte) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- &RoomMessage{RoomID: roomID, Message: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(msg *RoomMessage) {
	var slow []Conn

	h.mu.RLock()
	for _, c := range h.rooms[msg.RoomID] {
		if !c.Send(msg.Message) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, c.ID()).Str(log.FieldChatID, msg.RoomID).Msg("dropping slow client")
		h.remove(c)
	}
}

func (h *Hub) remove(c Conn) {
	h.mu.Lock()
	id := c.ID()
	for roomID := range h.rooms {
		h.leaveLocked(id, roomID)
	}
	_, known := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if known {
		c.Close()
		l := log.L()
		l.Debug().Str(log.FieldConnectionID, id).Msg("client unregistered")
	}
}

func (h *Hub) leaveLocked(connID, roomID string) bool {
	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]Conn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]Conn)
	h.rooms = make(map[string]map[string]Conn)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
