package chatgateway

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long we tolerate silence from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames; content itself is capped separately.
	maxMessageSize = 4096
)

// EventHandler consumes decoded frames from a session's read pump.
type EventHandler interface {
	HandleEvent(s *Session, data []byte)
}

// Session owns one WebSocket connection: a read pump feeding the handler and
// a write pump draining a bounded send queue. All fan-out goes through Send,
// never through the socket directly.
type Session struct {
	id       string
	identity ports.Identity

	ws      *websocket.Conn
	send    chan []byte
	handler EventHandler
	onClose func(*Session)
}

// NewSession wraps an upgraded connection. onClose runs exactly once when the
// read pump exits, before the socket is torn down.
func NewSession(id string, identity ports.Identity, ws *websocket.Conn, queueSize int, handler EventHandler, onClose func(*Session)) *Session {
	return &Session{
		id:       id,
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, queueSize),
		handler:  handler,
		onClose:  onClose,
	}
}

// ID returns the per-connection identifier.
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated user or admin id.
func (s *Session) Identity() string { return s.identity.ID }

// Role returns the authenticated role.
func (s *Session) Role() chat.Role { return s.identity.Role }

// Send queues data for the write pump without blocking. A full queue means
// the peer is not draining; the frame is dropped and the caller told.
func (s *Session) Send(data []byte) error {
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: send queue full for connection %s", chat.ErrChannelUnavailable, s.id)
	}
}

// Start launches both pumps. The write pump owns all writes to the socket.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

func (s *Session) readPump() {
	defer func() {
		if s.onClose != nil {
			s.onClose(s)
		}
		s.ws.Close()
	}()

	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		s.handler.HandleEvent(s, data)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
