package contracts

import "time"

// StatusUpdateMessage is published to the "order_status_fanout" exchange
// after a transition commits, and consumed by every chat gateway.
type StatusUpdateMessage struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedBy string    `json:"changed_by"`
	Timestamp time.Time `json:"timestamp"`
}
