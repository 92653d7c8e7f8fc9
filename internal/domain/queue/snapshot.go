package queue

import (
	"github.com/samber/lo"

	"delivery-chat/internal/domain/orders"
)

// Snapshot is the customer-visible view of an order's place in the delivery
// queue. It is derived on demand and never stored.
type Snapshot struct {
	OrderID          string
	InQueue          bool
	Status           orders.OrderStatus
	Position         int
	EstimatedMinutes int
	EstimatedTime    string
}

// Estimate ladder. The thresholds are fixed; position picks the base bucket
// and pipeline stage tightens it, because position matters less than stage
// once a courier is en route. The table deliberately mirrors the historical
// storefront behavior instead of inventing a continuous model.
var buckets = []struct {
	minutes int
	label   string
}{
	{5, "0-5min"},
	{10, "5-10min"},
	{20, "10-20min"},
	{30, "20-30min"},
	{45, "30-45min"},
	{60, "45-60min"},
}

// Estimate maps a 1-based queue position and a status to a bucketed estimate.
func Estimate(position int, status orders.OrderStatus) (minutes int, label string) {
	idx := baseBucket(position)

	switch status {
	case orders.StatusProcessing:
		idx--
	case orders.StatusShipped, orders.StatusReadyForDelivery:
		idx -= 2
	}
	if idx < 0 {
		idx = 0
	}

	return buckets[idx].minutes, buckets[idx].label
}

func baseBucket(position int) int {
	switch {
	case position <= 5:
		return 1
	case position <= 15:
		return 2
	case position <= 30:
		return 3
	case position <= 45:
		return 4
	default:
		return 5
	}
}

// BuildSnapshot ranks the order among the active set (already ordered by
// creation/priority timestamp) and derives its estimate. Terminal statuses
// yield inQueue=false with no position or estimate.
func BuildSnapshot(orderID string, status orders.OrderStatus, active []orders.Order) Snapshot {
	if status.Terminal() {
		return Snapshot{OrderID: orderID, InQueue: false, Status: status}
	}

	_, idx, found := lo.FindIndexOf(active, func(o orders.Order) bool { return o.ID == orderID })
	if !found {
		// active set drifted between reads; treat as out of queue rather than guessing
		return Snapshot{OrderID: orderID, InQueue: false, Status: status}
	}

	position := idx + 1
	minutes, label := Estimate(position, status)

	return Snapshot{
		OrderID:          orderID,
		InQueue:          true,
		Status:           status,
		Position:         position,
		EstimatedMinutes: minutes,
		EstimatedTime:    label,
	}
}
