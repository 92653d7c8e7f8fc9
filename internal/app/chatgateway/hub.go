package chatgateway

import (
	"errors"
	"sync"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/shared/metrics"
)

// Member is one live connection as seen by the room registry.
type Member interface {
	ID() string
	Identity() string
	Role() chat.Role
	Send(data []byte) error
}

// Broadcaster is the fan-out surface the controllers need from the registry.
type Broadcaster interface {
	Broadcast(orderID, except string, data []byte)
	MembersOf(orderID string) []Member
}

// RoomIndex extends Broadcaster with the lookups the notification dispatcher needs.
type RoomIndex interface {
	Broadcaster
	SessionsFor(identity string) []Member
	RoomOf(connectionID string) (string, bool)
	OpenRooms() []string
}

var errUnknownConnection = errors.New("unknown connection")

// Hub is the room registry: it maps order ids to the connections currently
// subscribed to that order's events. Rooms are transient; an empty room is
// dropped immediately. All state is per-process and rebuilt from live
// connections, never persisted.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]Member            // connection id -> session
	rooms       map[string]map[string]Member // order id -> connection id -> session
	byIdentity  map[string]map[string]Member // user/admin id -> connection id -> session
	currentRoom map[string]string            // connection id -> order id
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[string]Member),
		rooms:       make(map[string]map[string]Member),
		byIdentity:  make(map[string]map[string]Member),
		currentRoom: make(map[string]string),
	}
}

// Register adds a freshly authenticated connection to the registry.
func (h *Hub) Register(m Member) {
	h.mu.Lock()
	h.sessions[m.ID()] = m
	byID, ok := h.byIdentity[m.Identity()]
	if !ok {
		byID = make(map[string]Member)
		h.byIdentity[m.Identity()] = byID
	}
	byID[m.ID()] = m
	online := len(h.sessions)
	h.mu.Unlock()

	metrics.OnlineConns.Set(float64(online))
}

// Join adds the connection to the order's room. A connection holds at most
// one room at a time: joining while another room is open leaves it first.
// Idempotent when already a member. Authorization happens before this call.
func (h *Hub) Join(connectionID, orderID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[connectionID]
	if !ok {
		return errUnknownConnection
	}

	if h.currentRoom[connectionID] == orderID {
		return nil
	}

	h.leaveLocked(connectionID)

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[string]Member)
		h.rooms[orderID] = room
	}
	room[connectionID] = m
	h.currentRoom[connectionID] = orderID

	metrics.OpenRooms.Set(float64(len(h.rooms)))
	return nil
}

// Leave removes the connection from the given room, dropping the room when empty.
func (h *Hub) Leave(connectionID, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentRoom[connectionID] != orderID {
		return
	}
	h.leaveLocked(connectionID)
	metrics.OpenRooms.Set(float64(len(h.rooms)))
}

// OnDisconnect is the cleanup hook invoked by the transport layer. It removes
// the connection everywhere and is safe to call more than once.
func (h *Hub) OnDisconnect(connectionID string) {
	h.mu.Lock()
	m, known := h.sessions[connectionID]
	if known {
		h.leaveLocked(connectionID)
		delete(h.sessions, connectionID)
		if byID, ok := h.byIdentity[m.Identity()]; ok {
			delete(byID, connectionID)
			if len(byID) == 0 {
				delete(h.byIdentity, m.Identity())
			}
		}
	}
	online := len(h.sessions)
	openRooms := len(h.rooms)
	h.mu.Unlock()

	if known {
		metrics.OnlineConns.Set(float64(online))
		metrics.OpenRooms.Set(float64(openRooms))
	}
}

// MembersOf returns the current member set for fan-out.
func (h *Hub) MembersOf(orderID string) []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[orderID]
	out := make([]Member, 0, len(room))
	for _, m := range room {
		out = append(out, m)
	}
	return out
}

// SessionsFor returns every live connection held by one identity, joined or not.
func (h *Hub) SessionsFor(identity string) []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byID := h.byIdentity[identity]
	out := make([]Member, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	return out
}

// RoomOf reports which room the connection currently views, if any.
func (h *Hub) RoomOf(connectionID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	orderID, ok := h.currentRoom[connectionID]
	return orderID, ok
}

// OpenRooms lists order ids with at least one member.
func (h *Hub) OpenRooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms))
	for orderID := range h.rooms {
		out = append(out, orderID)
	}
	return out
}

// Broadcast queues data to every room member except the named connection.
// Slow members are skipped, not waited on; the send queue bound decides.
func (h *Hub) Broadcast(orderID, except string, data []byte) {
	for _, m := range h.MembersOf(orderID) {
		if m.ID() == except {
			continue
		}
		if err := m.Send(data); err != nil {
			metrics.FanoutBackpressure.Inc()
			continue
		}
		metrics.MessagesFanned.Inc()
	}
}

// Stats returns current room and connection counts.
func (h *Hub) Stats() (rooms, connections int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.sessions)
}

// leaveLocked removes the connection from its current room; callers hold h.mu.
func (h *Hub) leaveLocked(connectionID string) {
	orderID, ok := h.currentRoom[connectionID]
	if !ok {
		return
	}
	delete(h.currentRoom, connectionID)

	room, ok := h.rooms[orderID]
	if !ok {
		return
	}
	delete(room, connectionID)
	if len(room) == 0 {
		delete(h.rooms, orderID)
	}
}
