package chatgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/logger"
)

// Error codes sent on rejected frames.
const (
	codeUnauthenticated = "unauthenticated"
	codeUnauthorized    = "unauthorized"
	codeInvalidMessage  = "invalid_message"
	codeNotFound        = "not_found"
	codeNotInRoom       = "not_in_room"
	codeStoreDown       = "store_unavailable"
	codeBadRequest      = "bad_request"
)

// WSHandler owns the live channel: it upgrades, authenticates, registers the
// session, and dispatches its frames to the gateway services.
type WSHandler struct {
	logger   *logger.Logger
	auth     ports.Authenticator
	orders   ports.OrderRepository
	hub      *Hub
	chat     ports.ChatService
	typing   *TypingController
	receipts *ReceiptTracker

	queueSize int
	upgrader  websocket.Upgrader
}

// NewWSHandler wires the live-channel handler.
func NewWSHandler(log *logger.Logger, auth ports.Authenticator, ordersRepo ports.OrderRepository, hub *Hub, chatSvc ports.ChatService, typing *TypingController, receipts *ReceiptTracker, queueSize int) *WSHandler {
	return &WSHandler{
		logger:    log,
		auth:      auth,
		orders:    ordersRepo,
		hub:       hub,
		chat:      chatSvc,
		typing:    typing,
		receipts:  receipts,
		queueSize: queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The storefront fronts the gateway; origin policy is enforced there.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the WebSocket endpoint on the provided mux.
func (handler *WSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", handler.handleWS)
}

// handleWS authenticates, upgrades, and parks the connection in its pumps.
func (handler *WSHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := handler.logger.WithRequestID(r.Context(), randID())

	identity, err := handler.auth.Authenticate(ctx, bearerToken(r))
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ws, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error(ctx, "ws_upgrade_failed", "WebSocket upgrade failed", err)
		return
	}

	session := NewSession(uuid.NewString(), identity, ws, handler.queueSize, handler, func(s *Session) {
		handler.hub.OnDisconnect(s.ID())
		handler.logger.Debug(context.WithoutCancel(ctx), "ws_disconnected", "Live connection closed", map[string]any{
			"connection_id": s.ID(),
			"identity":      s.Identity(),
		})
	})
	handler.hub.Register(session)
	session.Start()

	handler.logger.Info(ctx, "ws_connected", "Live connection established", map[string]any{
		"connection_id": session.ID(),
		"identity":      identity.ID,
		"role":          string(identity.Role),
	})
}

// HandleEvent dispatches one decoded frame from a session's read pump.
func (handler *WSHandler) HandleEvent(s *Session, data []byte) {
	ctx := handler.logger.WithRequestID(context.Background(), randID())

	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		handler.sendError(s, "", codeBadRequest, "malformed frame")
		return
	}
	if env.OrderID == "" {
		handler.sendError(s, "", codeBadRequest, "orderId is required")
		return
	}

	switch env.Type {
	case EventJoinOrderChat:
		handler.handleJoin(ctx, s, env.OrderID)
	case EventLeaveOrderChat:
		handler.hub.Leave(s.ID(), env.OrderID)
		handler.typing.Stop(env.OrderID, s.Role(), s.ID())
	case EventSendMessage:
		handler.handleSend(ctx, s, env)
	case EventTyping:
		handler.handleTyping(s, env)
	case EventMarkRead:
		handler.handleMarkRead(ctx, s, env.OrderID)
	default:
		handler.sendError(s, env.OrderID, codeBadRequest, "unknown event type: "+env.Type)
	}
}

func (handler *WSHandler) handleJoin(ctx context.Context, s *Session, orderID string) {
	if err := handler.authorizeJoin(ctx, s, orderID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			handler.sendError(s, orderID, codeNotFound, "order not found")
		case errors.Is(err, chat.ErrUnauthorized):
			handler.sendError(s, orderID, codeUnauthorized, "not your order")
		default:
			handler.logger.Error(ctx, "db_query_failed", "Order lookup failed on join", err)
			handler.sendError(s, orderID, codeStoreDown, "order store unavailable")
		}
		return
	}

	if err := handler.hub.Join(s.ID(), orderID); err != nil {
		handler.sendError(s, orderID, codeBadRequest, err.Error())
		return
	}

	handler.logger.Debug(ctx, "room_joined", "Connection joined order room", map[string]any{
		"connection_id": s.ID(),
		"order_id":      orderID,
	})
}

// authorizeJoin checks the order exists and, for customers, that they own it.
func (handler *WSHandler) authorizeJoin(ctx context.Context, s *Session, orderID string) error {
	order, err := handler.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if s.Role() == chat.RoleCustomer && order.CustomerID != s.Identity() {
		return fmt.Errorf("%w: order %s is not held by %s", chat.ErrUnauthorized, orderID, s.Identity())
	}
	return nil
}

func (handler *WSHandler) handleSend(ctx context.Context, s *Session, env ClientEnvelope) {
	if !handler.inRoom(s, env.OrderID) {
		handler.sendError(s, env.OrderID, codeNotInRoom, "join the order chat first")
		return
	}

	msg, err := handler.chat.Send(ctx, ports.SendMessageCommand{
		OrderID:      env.OrderID,
		Sender:       s.Role().Sender(),
		Content:      env.Content,
		ConnectionID: s.ID(),
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidMessage):
			handler.sendError(s, env.OrderID, codeInvalidMessage, err.Error())
		case errors.Is(err, chat.ErrStoreUnavailable):
			handler.sendError(s, env.OrderID, codeStoreDown, "message store unavailable")
		default:
			handler.logger.Error(ctx, "message_send_failed", "Failed to send chat message", err)
			handler.sendError(s, env.OrderID, codeBadRequest, "send failed")
		}
		return
	}

	// Sending implies the keyboard went quiet.
	handler.typing.Stop(env.OrderID, s.Role(), s.ID())

	_ = s.Send(encodeEvent(MessageSentEvent{
		Type:      EventMessageSent,
		OrderID:   msg.OrderID,
		MessageID: msg.ID,
		Timestamp: msg.CreatedAt,
	}))
}

func (handler *WSHandler) handleTyping(s *Session, env ClientEnvelope) {
	if !handler.inRoom(s, env.OrderID) {
		handler.sendError(s, env.OrderID, codeNotInRoom, "join the order chat first")
		return
	}
	if env.Typing {
		handler.typing.Keystroke(env.OrderID, s.Role(), s.ID())
	} else {
		handler.typing.Stop(env.OrderID, s.Role(), s.ID())
	}
}

func (handler *WSHandler) handleMarkRead(ctx context.Context, s *Session, orderID string) {
	if !handler.inRoom(s, orderID) {
		handler.sendError(s, orderID, codeNotInRoom, "join the order chat first")
		return
	}
	if _, err := handler.receipts.MarkRead(ctx, orderID, s.Role(), s.ID()); err != nil {
		handler.logger.Error(ctx, "mark_read_failed", "Failed to apply read receipt", err)
		handler.sendError(s, orderID, codeStoreDown, "message store unavailable")
	}
}

func (handler *WSHandler) inRoom(s *Session, orderID string) bool {
	room, ok := handler.hub.RoomOf(s.ID())
	return ok && room == orderID
}

func (handler *WSHandler) sendError(s *Session, orderID, code, msg string) {
	_ = s.Send(encodeEvent(ErrorEvent{
		Type:    EventError,
		Code:    code,
		OrderID: orderID,
		Error:   msg,
	}))
}
