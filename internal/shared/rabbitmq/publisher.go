package rabbitmq

import (
	"encoding/json"
	"fmt"

	"delivery-chat/internal/shared/contracts"
)

// StatusPublisher publishes committed status changes to the fanout exchange.
type StatusPublisher struct {
	client *Client
}

// NewStatusPublisher wraps the shared client.
func NewStatusPublisher(client *Client) *StatusPublisher {
	return &StatusPublisher{client: client}
}

// PublishStatusUpdate sends one status update; fanout ignores the routing key.
func (p *StatusPublisher) PublishStatusUpdate(upd contracts.StatusUpdateMessage) error {
	body, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("encode status update: %w", err)
	}
	return p.client.PublishMessage(StatusExchange, "", body)
}
