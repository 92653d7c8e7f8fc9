package chatgateway

import (
	"context"
	"fmt"
	"time"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/logger"
)

// ReceiptTracker handles read acknowledgements. Marking is idempotent at the
// store level: only acks that actually flip unread rows produce a broadcast,
// so repeated acks on an already-read conversation stay silent.
type ReceiptTracker struct {
	messages ports.MessageRepository
	rooms    Broadcaster
	log      *logger.Logger
	now      func() time.Time
}

// NewReceiptTracker constructs the tracker.
func NewReceiptTracker(messages ports.MessageRepository, rooms Broadcaster, log *logger.Logger) *ReceiptTracker {
	return &ReceiptTracker{
		messages: messages,
		rooms:    rooms,
		log:      log,
		now:      time.Now,
	}
}

// MarkRead stamps every unread counterpart message in the room as read and,
// when anything changed, tells the rest of the room who read and when.
// Returns whether a broadcast happened.
func (t *ReceiptTracker) MarkRead(ctx context.Context, orderID string, reader chat.Role, except string) (bool, error) {
	// Reading as a client marks the livreur's messages, and vice versa.
	counterpart := reader.Sender().Counterpart()
	readAt := t.now().UTC()

	n, err := t.messages.MarkRead(ctx, orderID, counterpart, readAt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return false, nil
	}

	t.log.Debug(ctx, "messages_read", "Read receipt applied", map[string]any{
		"order_id": orderID,
		"reader":   string(reader.Sender()),
		"count":    n,
	})

	t.rooms.Broadcast(orderID, except, encodeEvent(MessagesReadEvent{
		Type:    EventMessagesRead,
		OrderID: orderID,
		Role:    string(reader.Sender()),
		ReadAt:  readAt,
	}))
	return true, nil
}
