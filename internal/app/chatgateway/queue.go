package chatgateway

import (
	"context"

	"delivery-chat/internal/domain/queue"
	"delivery-chat/internal/ports"
)

// QueueEstimator derives customer-visible queue snapshots from the order
// store. Stateless; every snapshot is recomputed from the active set.
type QueueEstimator struct {
	orders ports.OrderRepository
}

// NewQueueEstimator constructs the estimator.
func NewQueueEstimator(orders ports.OrderRepository) *QueueEstimator {
	return &QueueEstimator{orders: orders}
}

// SnapshotFor computes the queue snapshot for one order.
func (q *QueueEstimator) SnapshotFor(ctx context.Context, orderID string) (queue.Snapshot, error) {
	order, err := q.orders.GetByID(ctx, orderID)
	if err != nil {
		return queue.Snapshot{}, err
	}

	// Terminal orders never need the active scan.
	if order.Status.Terminal() {
		return queue.BuildSnapshot(orderID, order.Status, nil), nil
	}

	active, err := q.orders.ListActive(ctx)
	if err != nil {
		return queue.Snapshot{}, err
	}

	return queue.BuildSnapshot(orderID, order.Status, active), nil
}

var _ ports.QueueService = (*QueueEstimator)(nil)
