package ports

import (
	"context"
	"time"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/domain/queue"
)

// Identity is what the auth collaborator resolves transport credentials into.
type Identity struct {
	ID   string
	Role chat.Role
}

// Authenticator validates transport credentials at connect time.
type Authenticator interface {
	// Authenticate returns the identity behind the token or chat.ErrUnauthenticated.
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// SendMessageCommand carries one outbound chat message.
type SendMessageCommand struct {
	OrderID string
	Sender  chat.Sender
	Content string
	// ConnectionID of the originating live connection; empty for the REST
	// fallback path. The originator never receives its own fan-out echo.
	ConnectionID string
}

// ChatService is the message exchange: validate, persist, fan out.
type ChatService interface {
	Send(ctx context.Context, cmd SendMessageCommand) (*chat.Message, error)
	History(ctx context.Context, orderID string, since time.Time) ([]chat.Message, error)
}

// TransitionCommand asks for one order status change.
type TransitionCommand struct {
	OrderID   string
	Next      orders.OrderStatus
	ChangedBy string
}

// TransitionResult reports the applied change.
type TransitionResult struct {
	OrderID   string
	Old       orders.OrderStatus
	New       orders.OrderStatus
	ChangedAt time.Time
}

// StatusService is the order status state machine.
type StatusService interface {
	Transition(ctx context.Context, cmd TransitionCommand) (*TransitionResult, error)
	History(ctx context.Context, orderID string) ([]orders.StatusLog, error)
}

// QueueService derives the customer-visible queue snapshot.
type QueueService interface {
	SnapshotFor(ctx context.Context, orderID string) (queue.Snapshot, error)
}
