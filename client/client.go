// Package client is a Go client for the delivery chat gateway. It keeps one
// live WebSocket connection, reconnects with capped backoff, and replays the
// resync sequence after every reconnect: re-join the open room, fetch the
// missed history over REST, reset the typing state, and re-ack reads.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config controls connection and reconnection behavior.
type Config struct {
	// GatewayURL is the WebSocket endpoint, e.g. ws://localhost:3003/ws.
	GatewayURL string
	// RESTURL is the HTTP base of the same gateway, e.g. http://localhost:3003.
	RESTURL string
	// Token is the bearer credential issued by the storefront at login.
	Token string

	// MaxAttempts caps reconnect attempts per outage; 0 means retry forever.
	MaxAttempts int
	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the growing delay between attempts.
	MaxBackoff time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
}

// Frame is one decoded event from the gateway. Fields are populated according
// to Type; unused ones stay zero.
type Frame struct {
	Type             string     `json:"type"`
	OrderID          string     `json:"orderId"`
	Sender           string     `json:"sender,omitempty"`
	Content          string     `json:"content,omitempty"`
	Timestamp        time.Time  `json:"timestamp,omitempty"`
	Role             string     `json:"role,omitempty"`
	Typing           bool       `json:"typing,omitempty"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
	Message          string     `json:"message,omitempty"`
	NotificationType string     `json:"notificationType,omitempty"`
	InQueue          bool       `json:"inQueue,omitempty"`
	Status           string     `json:"status,omitempty"`
	Code             string     `json:"code,omitempty"`
	Error            string     `json:"error,omitempty"`
	QueueInfo        *QueueInfo `json:"queueInfo,omitempty"`
}

// QueueInfo mirrors the gateway's snapshot payload.
type QueueInfo struct {
	Position      int    `json:"position"`
	EstimatedTime string `json:"estimatedTime"`
}

// HistoryMessage is one entry returned by the history endpoint.
type HistoryMessage struct {
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ReadAt    *time.Time `json:"readAt"`
}

// Handlers receive client events. Nil handlers are skipped. They are invoked
// from the client's read goroutine; do not block in them.
type Handlers struct {
	// OnFrame receives every live event, including the ones replayed from
	// history after a reconnect (those carry Type "new_message").
	OnFrame func(Frame)
	// OnDisconnect fires when the live connection drops.
	OnDisconnect func(err error)
	// OnReconnect fires after a successful reconnect and resync.
	OnReconnect func(attempt int)
}

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client is closed")

// ErrNotConnected is returned when no live connection is available.
var ErrNotConnected = errors.New("not connected")

// Client is a reconnecting chat client. Safe for concurrent use.
type Client struct {
	cfg      Config
	handlers Handlers
	httpc    *http.Client

	mu       sync.Mutex
	ws       *websocket.Conn
	room     string    // currently joined order room, if any
	lastSeen time.Time // newest message timestamp observed, resync cursor
	closed   bool
}

// New builds a client; call Connect to go live.
func New(cfg Config, handlers Handlers) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		handlers: handlers,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect dials the gateway and starts the read loop. Manual by design: the
// caller decides when going live is worth it (e.g. after login).
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ctx, ws)
	return nil
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
}

// Join opens the room for one order; the gateway leaves any previous room.
func (c *Client) Join(orderID string) error {
	if err := c.write(map[string]any{"type": "join_order_chat", "orderId": orderID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.room = orderID
	c.mu.Unlock()
	return nil
}

// Leave closes the room.
func (c *Client) Leave(orderID string) error {
	c.mu.Lock()
	if c.room == orderID {
		c.room = ""
	}
	c.mu.Unlock()
	return c.write(map[string]any{"type": "leave_order_chat", "orderId": orderID})
}

// Send posts one chat message over the live channel.
func (c *Client) Send(orderID, content string) error {
	return c.write(map[string]any{"type": "send_message", "orderId": orderID, "content": content})
}

// Typing reports the local keyboard state.
func (c *Client) Typing(orderID string, typing bool) error {
	return c.write(map[string]any{"type": "typing", "orderId": orderID, "typing": typing})
}

// MarkRead acknowledges everything received so far in the room.
func (c *Client) MarkRead(orderID string) error {
	return c.write(map[string]any{"type": "mark_read", "orderId": orderID})
}

// History fetches messages over REST, optionally only those after since.
func (c *Client) History(ctx context.Context, orderID string, since time.Time) ([]HistoryMessage, error) {
	url := fmt.Sprintf("%s/orders/%s/chat", c.cfg.RESTURL, orderID)
	if !since.IsZero() {
		url += "?since=" + since.UTC().Format(time.RFC3339)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// --- internals ---

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.GatewayURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws, err
}

func (c *Client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.ws == ws {
				c.ws = nil
			}
			c.mu.Unlock()

			if closed || ctx.Err() != nil {
				return
			}
			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(err)
			}
			c.reconnect(ctx)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.observe(frame)
		if c.handlers.OnFrame != nil {
			c.handlers.OnFrame(frame)
		}
	}
}

// observe advances the resync cursor past every message timestamp seen live.
func (c *Client) observe(frame Frame) {
	if frame.Type != "new_message" || frame.Timestamp.IsZero() {
		return
	}
	c.mu.Lock()
	if frame.Timestamp.After(c.lastSeen) {
		c.lastSeen = frame.Timestamp
	}
	c.mu.Unlock()
}

// reconnect retries with growing, capped backoff until it gets a connection
// back or runs out of attempts, then replays the resync sequence.
func (c *Client) reconnect(ctx context.Context) {
	backoff := c.cfg.InitialBackoff

	for attempt := 1; c.cfg.MaxAttempts == 0 || attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ws, err := c.dial(ctx)
		if err != nil {
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		room := c.room
		since := c.lastSeen
		c.mu.Unlock()

		go c.readLoop(ctx, ws)
		c.resync(ctx, room, since)

		if c.handlers.OnReconnect != nil {
			c.handlers.OnReconnect(attempt)
		}
		return
	}
}

// resync replays the catch-up sequence: re-join the room, fetch what was
// missed, clear the stale typing flag, and re-ack reads.
func (c *Client) resync(ctx context.Context, room string, since time.Time) {
	if room == "" {
		return
	}

	_ = c.Join(room)

	missed, err := c.History(ctx, room, since)
	if err == nil {
		for _, m := range missed {
			frame := Frame{
				Type:      "new_message",
				OrderID:   room,
				Sender:    m.Sender,
				Content:   m.Content,
				Timestamp: m.Timestamp,
				ReadAt:    m.ReadAt,
			}
			c.observe(frame)
			if c.handlers.OnFrame != nil {
				c.handlers.OnFrame(frame)
			}
		}
	}

	// any typing flag from before the drop is stale now
	_ = c.Typing(room, false)
	_ = c.MarkRead(room)
}
