package chatgateway

import (
	"sync"
	"time"

	"delivery-chat/internal/domain/chat"
)

// DefaultTypingWindow is how long a typing flag survives without keystrokes.
const DefaultTypingWindow = 3 * time.Second

type typingKey struct {
	orderID string
	party   chat.Sender
}

// TypingController keeps the ephemeral per-room typing flags. State lives in
// memory only; each keystroke frame extends the window and expiry clears the
// flag for everyone. Repeated keystrokes inside the window never rebroadcast.
type TypingController struct {
	window time.Duration
	rooms  Broadcaster

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
	closed bool
}

// NewTypingController builds a controller with the given expiry window.
func NewTypingController(window time.Duration, rooms Broadcaster) *TypingController {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &TypingController{
		window: window,
		rooms:  rooms,
		timers: make(map[typingKey]*time.Timer),
	}
}

// Keystroke registers typing activity for the sender's party in a room. The
// first keystroke broadcasts typing=true to the rest of the room; followups
// inside the window only push the expiry out.
func (c *TypingController) Keystroke(orderID string, role chat.Role, except string) {
	key := typingKey{orderID: orderID, party: role.Sender()}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if t, ok := c.timers[key]; ok {
		t.Reset(c.window)
		c.mu.Unlock()
		return
	}
	c.timers[key] = time.AfterFunc(c.window, func() { c.expire(key) })
	c.mu.Unlock()

	c.broadcast(key, true, except)
}

// Stop clears the typing flag immediately, e.g. when a message is sent or the
// client reports typing=false. No-op when the flag is not set.
func (c *TypingController) Stop(orderID string, role chat.Role, except string) {
	key := typingKey{orderID: orderID, party: role.Sender()}

	c.mu.Lock()
	t, ok := c.timers[key]
	if ok {
		t.Stop()
		delete(c.timers, key)
	}
	c.mu.Unlock()

	if ok {
		c.broadcast(key, false, except)
	}
}

// IsTyping reports whether the party's flag is currently set.
func (c *TypingController) IsTyping(orderID string, party chat.Sender) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[typingKey{orderID: orderID, party: party}]
	return ok
}

// Shutdown stops all timers; used on gateway shutdown.
func (c *TypingController) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
}

func (c *TypingController) expire(key typingKey) {
	c.mu.Lock()
	_, ok := c.timers[key]
	if ok {
		delete(c.timers, key)
	}
	c.mu.Unlock()

	// Expiry reaches the whole room; the originator's client resets too.
	if ok {
		c.broadcast(key, false, "")
	}
}

func (c *TypingController) broadcast(key typingKey, typing bool, except string) {
	c.rooms.Broadcast(key.orderID, except, encodeEvent(UserTypingEvent{
		Type:    EventUserTyping,
		OrderID: key.orderID,
		Role:    string(key.party),
		Typing:  typing,
	}))
}
