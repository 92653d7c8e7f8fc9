package ports

import (
	"context"
	"time"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/domain/orders"
)

// UnitOfWork wraps a function in a DB transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository is the order-store collaborator. The subsystem only reads
// orders and writes their status; everything else belongs to the storefront.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*orders.Order, error)
	// UpdateStatusCAS compares-and-swaps the status so concurrent transitions
	// cannot skip edges; applied=false means the expected status did not match.
	UpdateStatusCAS(ctx context.Context, id string, expected, next orders.OrderStatus, changedBy string) (applied bool, err error)
	// ListActive returns orders in an active lifecycle state, ordered by
	// creation/priority timestamp. Used to derive queue positions.
	ListActive(ctx context.Context) ([]orders.Order, error)
	ListHistory(ctx context.Context, id string) ([]orders.StatusLog, error)
}

// MessageRepository is the message-store collaborator.
type MessageRepository interface {
	Append(ctx context.Context, msg *chat.Message) error
	// History returns messages for the order created strictly after since,
	// oldest first. A zero since returns the full history.
	History(ctx context.Context, orderID string, since time.Time) ([]chat.Message, error)
	// MarkRead stamps read_at on every unread message from the given sender
	// up to the given time and reports how many rows changed.
	MarkRead(ctx context.Context, orderID string, sender chat.Sender, upTo time.Time) (int64, error)
}
