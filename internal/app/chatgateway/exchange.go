package chatgateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/sonyflake"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/logger"
	"delivery-chat/internal/shared/metrics"
)

// Exchange implements ports.ChatService: validate, persist, fan out, in that
// order. A message that could not be persisted is never fanned out.
type Exchange struct {
	messages ports.MessageRepository
	rooms    Broadcaster
	flake    *sonyflake.Sonyflake
	log      *logger.Logger

	now func() time.Time

	mu     sync.Mutex
	lastTS map[string]time.Time // order id -> last assigned timestamp
}

// NewExchange constructs the message exchange.
func NewExchange(messages ports.MessageRepository, rooms Broadcaster, flake *sonyflake.Sonyflake, log *logger.Logger) *Exchange {
	return &Exchange{
		messages: messages,
		rooms:    rooms,
		flake:    flake,
		log:      log,
		now:      time.Now,
		lastTS:   make(map[string]time.Time),
	}
}

// Send validates the content, persists the message with a server-assigned id
// and timestamp, then fans it out to every room member except the sender.
func (e *Exchange) Send(ctx context.Context, cmd ports.SendMessageCommand) (*chat.Message, error) {
	if err := chat.ValidateContent(cmd.Content); err != nil {
		return nil, err
	}

	id, err := e.flake.NextID()
	if err != nil {
		return nil, fmt.Errorf("assign message id: %w", err)
	}

	msg := &chat.Message{
		ID:        int64(id),
		OrderID:   cmd.OrderID,
		Sender:    cmd.Sender,
		Content:   cmd.Content,
		CreatedAt: e.nextTimestamp(cmd.OrderID),
	}

	if err := e.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
	}

	e.log.Debug(ctx, "message_persisted", "Chat message stored", map[string]any{
		"order_id": msg.OrderID,
		"sender":   string(msg.Sender),
	})

	// Offline counterpart: the message sits in the store until the next
	// history fetch. Counted, not retried.
	if len(e.rooms.MembersOf(cmd.OrderID)) <= 1 && cmd.ConnectionID != "" {
		metrics.OfflineDeliveries.Inc()
	}

	e.rooms.Broadcast(cmd.OrderID, cmd.ConnectionID, encodeEvent(NewMessageEvent{
		Type:      EventNewMessage,
		OrderID:   msg.OrderID,
		Sender:    string(msg.Sender),
		Content:   msg.Content,
		Timestamp: msg.CreatedAt,
	}))

	return msg, nil
}

// History returns the order's messages created after since, oldest first.
func (e *Exchange) History(ctx context.Context, orderID string, since time.Time) ([]chat.Message, error) {
	history, err := e.messages.History(ctx, orderID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
	}
	return history, nil
}

// nextTimestamp assigns a per-order strictly increasing timestamp so clients
// sorting by it see one stable order even when sends race within a tick.
func (e *Exchange) nextTimestamp(orderID string) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.now().UTC()
	if last, ok := e.lastTS[orderID]; ok && !ts.After(last) {
		ts = last.Add(time.Millisecond)
	}
	e.lastTS[orderID] = ts
	return ts
}

var _ ports.ChatService = (*Exchange)(nil)
