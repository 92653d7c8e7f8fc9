package orders

import "time"

// StatusLog is one entry of the order's status audit trail.
type StatusLog struct {
	ID        int64
	OrderID   string
	Status    OrderStatus
	ChangedBy string
	ChangedAt time.Time
}
