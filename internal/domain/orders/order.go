package orders

import "time"

// DeliveryType is a custom type that represents how the order is scheduled for delivery.
type DeliveryType string

const (
	DeliveryInstant   DeliveryType = "instant"
	DeliveryScheduled DeliveryType = "scheduled"
)

// Order represents a customer's order as seen by the chat/status subsystem.
// The catalog, cart and payment fields live with the storefront; this
// subsystem only reads identity, status and queue-priority data.
type Order struct {
	ID           string
	CustomerID   string
	DeliveryType DeliveryType
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
