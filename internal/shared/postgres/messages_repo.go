package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
)

// MessagesRepo implements the message-store collaborator using pgx and SQL.
type MessagesRepo struct {
	pool *pgxpool.Pool
}

// NewMessagesRepo constructs a new MessagesRepo.
func NewMessagesRepo(pool *pgxpool.Pool) ports.MessageRepository {
	return &MessagesRepo{pool: pool}
}

// Append inserts one immutable message row.
func (r *MessagesRepo) Append(ctx context.Context, msg *chat.Message) error {
	q := queryTarget(ctx, r.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO messages (id, order_id, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.OrderID, msg.Sender, msg.Content, msg.CreatedAt)
	return err
}

// History returns messages created strictly after since, oldest first.
func (r *MessagesRepo) History(ctx context.Context, orderID string, since time.Time) ([]chat.Message, error) {
	q := queryTarget(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, sender, content, created_at, read_at
		FROM messages
		WHERE order_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC
	`, orderID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []chat.Message
	for rows.Next() {
		var msg chat.Message
		err = rows.Scan(&msg.ID, &msg.OrderID, &msg.Sender, &msg.Content, &msg.CreatedAt, &msg.ReadAt)
		if err != nil {
			return nil, err
		}
		history = append(history, msg)
	}

	return history, rows.Err()
}

// MarkRead stamps read_at on unread messages from the given sender up to upTo.
// The row count lets the caller keep read broadcasts idempotent.
func (r *MessagesRepo) MarkRead(ctx context.Context, orderID string, sender chat.Sender, upTo time.Time) (int64, error) {
	q := queryTarget(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE messages
		SET read_at = now()
		WHERE order_id = $1 AND sender = $2 AND created_at <= $3 AND read_at IS NULL
	`, orderID, sender, upTo)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
