// Package realtime delivers table-change notifications to websocket clients
// subscribed per room. A notification names the table and event only; clients
// are expected to re-fetch the scoped list over HTTP when one arrives.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is a single change record pushed to every client of the affected room
type Event struct {
	Table  string `json:"table"`
	Event  string `json:"event"`
	RoomID int64  `json:"room_id"`
}

// Hub owns all client registrations and fans change events out to rooms.
// All maps are confined to the Run goroutine.
type Hub struct {
	logger *zap.SugaredLogger

	rooms map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	kick       chan string
	notify     chan Event

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger:     logger,
		rooms:      make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		kick:       make(chan string),
		notify:     make(chan Event, 256),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run processes registrations and notifications until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.rooms {
				for c := range clients {
					close(c.send)
				}
			}
			h.rooms = make(map[int64]map[*Client]struct{})
			close(h.stopped)
			return
		case c := <-h.register:
			if h.rooms[c.roomID] == nil {
				h.rooms[c.roomID] = make(map[*Client]struct{})
			}
			h.rooms[c.roomID][c] = struct{}{}
			h.logger.Debugf("Registered client for room (id: %d), %d in room", c.roomID, len(h.rooms[c.roomID]))
		case c := <-h.unregister:
			h.drop(c)
		case id := <-h.kick:
			h.dropSession(id)
		case ev := <-h.notify:
			h.broadcast(ev)
		}
	}
}

// Stop shuts the hub down and closes every client send channel.
// It blocks until the Run loop has exited.
func (h *Hub) Stop() {
	h.once.Do(func() {
		close(h.done)
	})
	<-h.stopped
}

// Register subscribes a client to its room channel
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister releases a client; its send channel is closed exactly once
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// DropSession detaches every client registered under the given session id,
// closing their send channels. Used when a session is revoked on leave.
func (h *Hub) DropSession(id string) {
	select {
	case h.kick <- id:
	case <-h.done:
	}
}

// Notify queues a change record for every client subscribed to the room
func (h *Hub) Notify(table, event string, roomID int64) {
	select {
	case h.notify <- Event{Table: table, Event: event, RoomID: roomID}:
	case <-h.done:
	}
}

func (h *Hub) drop(c *Client) {
	clients, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.roomID)
	}
}

func (h *Hub) dropSession(id string) {
	if id == "" {
		return
	}
	for _, clients := range h.rooms {
		for c := range clients {
			if c.sessionID == id {
				h.drop(c)
			}
		}
	}
}

func (h *Hub) broadcast(ev Event) {
	clients, ok := h.rooms[ev.RoomID]
	if !ok {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Errorf("marshaling change event: %v", err)
		return
	}

	for c := range clients {
		select {
		case c.send <- data:
		default:
			// client is not draining its buffer, cut it loose
			h.logger.Debugf("Dropping slow client in room (id: %d)", ev.RoomID)
			h.drop(c)
		}
	}
}
