package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/ports"
)

// OrdersRepo implements the order-store collaborator using pgx and SQL.
type OrdersRepo struct {
	pool *pgxpool.Pool
}

// NewOrdersRepo constructs a new OrdersRepo.
func NewOrdersRepo(pool *pgxpool.Pool) ports.OrderRepository {
	return &OrdersRepo{pool: pool}
}

// GetByID retrieves an order by its id.
func (r *OrdersRepo) GetByID(ctx context.Context, id string) (*orders.Order, error) {
	q := queryTarget(ctx, r.pool)

	var order orders.Order
	err := q.QueryRow(ctx, `
		SELECT id, customer_id, delivery_type, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, &order.DeliveryType,
		&order.Status, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateStatusCAS updates the order status using a compare-and-swap approach
// and appends to the audit log when the swap applies.
func (r *OrdersRepo) UpdateStatusCAS(ctx context.Context, id string, expected, next orders.OrderStatus, changedBy string) (bool, error) {
	q := queryTarget(ctx, r.pool)

	var updated bool
	err := q.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING true
	`, next, id, expected).Scan(&updated)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, now())
	`, id, next, changedBy)
	return updated, err
}

// ListActive returns queue members ordered by their creation/priority timestamp.
func (r *OrdersRepo) ListActive(ctx context.Context) ([]orders.Order, error) {
	q := queryTarget(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, customer_id, delivery_type, status, created_at, updated_at
		FROM orders
		WHERE status IN ('pending', 'processing', 'shipped', 'ready_for_delivery')
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var active []orders.Order
	for rows.Next() {
		var order orders.Order
		err = rows.Scan(
			&order.ID, &order.CustomerID, &order.DeliveryType,
			&order.Status, &order.CreatedAt, &order.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		active = append(active, order)
	}

	return active, rows.Err()
}

// ListHistory retrieves the status change history for an order.
func (r *OrdersRepo) ListHistory(ctx context.Context, id string) ([]orders.StatusLog, error) {
	q := queryTarget(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, status, changed_by, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []orders.StatusLog
	for rows.Next() {
		var log orders.StatusLog
		err = rows.Scan(&log.ID, &log.OrderID, &log.Status, &log.ChangedBy, &log.ChangedAt)
		if err != nil {
			return nil, err
		}
		history = append(history, log)
	}

	return history, rows.Err()
}
