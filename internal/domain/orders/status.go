package orders

import "errors"

// OrderStatus is a custom type that represents the current status of an order in its lifecycle.
type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusProcessing       OrderStatus = "processing"
	StatusShipped          OrderStatus = "shipped"
	StatusReadyForDelivery OrderStatus = "ready_for_delivery"
	StatusDelivered        OrderStatus = "delivered"
	StatusCancelled        OrderStatus = "cancelled"
)

// ErrInvalidTransition is returned for any edge not present in the lifecycle table.
var ErrInvalidTransition = errors.New("invalid status transition")

// Allowed state transitions. Cancelled is reachable from every non-terminal
// state; delivered and cancelled are terminal.
var allowed = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:          {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:       {StatusShipped: true, StatusReadyForDelivery: true, StatusCancelled: true},
	StatusShipped:          {StatusDelivered: true, StatusCancelled: true},
	StatusReadyForDelivery: {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:        {},
	StatusCancelled:        {},
}

// CanTransition checks if from->to is allowed.
func CanTransition(from, to OrderStatus) bool {
	nexts := allowed[from]
	return nexts != nil && nexts[to]
}

// Terminal reports whether the status ends the lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Active reports whether the order still occupies a slot in the delivery queue.
func (s OrderStatus) Active() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusReadyForDelivery:
		return true
	default:
		return false
	}
}

// ActiveStatuses lists the statuses that count toward queue position, in lifecycle order.
func ActiveStatuses() []OrderStatus {
	return []OrderStatus{StatusPending, StatusProcessing, StatusShipped, StatusReadyForDelivery}
}

// ParseStatus maps a raw string to a known status.
func ParseStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case StatusPending, StatusProcessing, StatusShipped, StatusReadyForDelivery, StatusDelivered, StatusCancelled:
		return OrderStatus(s), true
	default:
		return "", false
	}
}
