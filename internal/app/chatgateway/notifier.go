package chatgateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/domain/queue"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/contracts"
	"delivery-chat/internal/shared/logger"
	"delivery-chat/internal/shared/metrics"
	"delivery-chat/internal/shared/rabbitmq"
)

// Notifier turns consumed status updates into room events. For the changed
// order's room it pushes a notification, an inline system line, and a fresh
// queue snapshot; every other open room gets a snapshot refresh because one
// order moving shifts everyone's position. Customers watching a different
// order get a badge on their other connections.
type Notifier struct {
	rooms  RoomIndex
	queue  ports.QueueService
	orders ports.OrderRepository
	log    *logger.Logger
}

// NewNotifier constructs the notification dispatcher.
func NewNotifier(rooms RoomIndex, queueSvc ports.QueueService, ordersRepo ports.OrderRepository, log *logger.Logger) *Notifier {
	return &Notifier{rooms: rooms, queue: queueSvc, orders: ordersRepo, log: log}
}

// HandleStatusUpdate processes one consumed status change. Failures to reach
// the store degrade to partial delivery, never to a dropped event.
func (n *Notifier) HandleStatusUpdate(ctx context.Context, upd contracts.StatusUpdateMessage) {
	metrics.StatusUpdates.Inc()

	n.rooms.Broadcast(upd.OrderID, "", encodeEvent(NotificationEvent{
		Type:             EventNotification,
		NotificationType: "status_update",
		OrderID:          upd.OrderID,
		Sender:           "system",
	}))
	n.rooms.Broadcast(upd.OrderID, "", encodeEvent(SystemMessageEvent{
		Type:    EventSystemMessage,
		OrderID: upd.OrderID,
		Message: statusMessage(orders.OrderStatus(upd.NewStatus)),
	}))

	if snap, err := n.queue.SnapshotFor(ctx, upd.OrderID); err != nil {
		n.log.Error(ctx, "queue_snapshot_failed", "Could not derive queue snapshot for updated order", err)
	} else {
		n.rooms.Broadcast(upd.OrderID, "", encodeEvent(queueUpdateEvent(snap)))
	}

	n.notifyBadges(ctx, upd.OrderID)
	n.refreshSiblingRooms(ctx, upd.OrderID)
}

// notifyBadges reaches the order's customer on connections whose viewport is
// on a different order (or no order at all).
func (n *Notifier) notifyBadges(ctx context.Context, orderID string) {
	order, err := n.orders.GetByID(ctx, orderID)
	if err != nil {
		n.log.Error(ctx, "order_lookup_failed", "Could not resolve customer for badge notification", err)
		return
	}

	badge := encodeEvent(NotificationEvent{
		Type:             EventNotification,
		NotificationType: "badge",
		OrderID:          orderID,
		Sender:           "system",
	})
	for _, m := range n.rooms.SessionsFor(order.CustomerID) {
		if room, ok := n.rooms.RoomOf(m.ID()); ok && room == orderID {
			continue
		}
		if err := m.Send(badge); err != nil {
			metrics.FanoutBackpressure.Inc()
		}
	}
}

// refreshSiblingRooms recomputes and pushes snapshots for every other open
// room still in the queue.
func (n *Notifier) refreshSiblingRooms(ctx context.Context, changedOrderID string) {
	for _, roomID := range n.rooms.OpenRooms() {
		if roomID == changedOrderID {
			continue
		}
		snap, err := n.queue.SnapshotFor(ctx, roomID)
		if err != nil {
			n.log.Error(ctx, "queue_snapshot_failed", "Could not refresh queue snapshot for room", err)
			continue
		}
		if !snap.InQueue {
			continue
		}
		n.rooms.Broadcast(roomID, "", encodeEvent(queueUpdateEvent(snap)))
	}
}

func queueUpdateEvent(snap queue.Snapshot) QueueUpdateEvent {
	ev := QueueUpdateEvent{
		Type:    EventQueueUpdate,
		OrderID: snap.OrderID,
		InQueue: snap.InQueue,
		Status:  string(snap.Status),
	}
	if snap.InQueue {
		ev.QueueInfo = &QueueInfo{Position: snap.Position, EstimatedTime: snap.EstimatedTime}
	}
	return ev
}

// statusMessage renders the inline system line for a status change. The
// storefront UI is French-facing, so the lines are too.
func statusMessage(status orders.OrderStatus) string {
	switch status {
	case orders.StatusPending:
		return "Votre commande est en attente."
	case orders.StatusProcessing:
		return "Votre commande est en préparation."
	case orders.StatusShipped:
		return "Votre commande a été expédiée."
	case orders.StatusReadyForDelivery:
		return "Votre commande est prête à être livrée."
	case orders.StatusDelivered:
		return "Votre commande a été livrée."
	case orders.StatusCancelled:
		return "Votre commande a été annulée."
	default:
		return "Le statut de votre commande a changé."
	}
}

// ConsumeStatusUpdates continuously (re)creates a channel and consumes status
// updates from the durable fanout-bound queue, feeding each one to the notifier.
func ConsumeStatusUpdates(ctx context.Context, rmq *rabbitmq.Client, notifier *Notifier, log *logger.Logger) {
	const (
		prefetch       = 50               // limit unacked messages this consumer can hold
		retryBaseDelay = time.Second      // backoff base
		retryMaxDelay  = 30 * time.Second // backoff cap
		consumerName   = ""               // let the server generate a unique consumer tag
		autoAck        = false
		exclusive      = false
		noLocal        = false
		noWait         = false
	)

	backoff := retryBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// acquire a fresh channel with QoS
		ch, err := rmq.NewConsumerChannel(prefetch)
		if err != nil {
			log.Error(ctx, "rabbitmq_channel_open_failed", "Failed to open consumer channel", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, retryMaxDelay)
			continue
		}

		// reset backoff on successful channel creation
		backoff = retryBaseDelay

		deliveries, err := ch.Consume(rabbitmq.StatusQueue, consumerName, autoAck, exclusive, noLocal, noWait, nil)
		if err != nil {
			_ = ch.Close()
			log.Error(ctx, "rabbitmq_consume_failed", "Failed to start consuming status updates", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, retryMaxDelay)
			continue
		}

		// watch for channel close to trigger a re-open
		closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	consumption:
		for {
			select {
			case <-ctx.Done():
				_ = ch.Close()
				break consumption

			case amqpErr := <-closed:
				if amqpErr != nil {
					log.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", amqpErr)
				} else {
					log.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", errors.New("unknown channel close"))
				}
				break consumption

			case d, ok := <-deliveries:
				if !ok {
					log.Error(ctx, "rabbitmq_deliveries_closed", "Deliveries channel closed", errors.New("deliveries channel closed"))
					break consumption
				}
				handleDelivery(ctx, notifier, log, d)
			}
		}

		// small delay before attempting to recreate channel (avoid hot loop)
		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, retryMaxDelay)
	}
}

// handleDelivery parses one status update and dispatches it.
func handleDelivery(ctx context.Context, notifier *Notifier, log *logger.Logger, d amqp.Delivery) {
	var update contracts.StatusUpdateMessage
	if err := json.Unmarshal(d.Body, &update); err != nil {
		log.Error(ctx, "status_update_decode_failed", "Failed to decode status update JSON", err)
		// malformed JSON cannot be recovered by redelivery - ack to drop it
		_ = d.Ack(false)
		return
	}

	log.Debug(ctx, "status_update_received", "Received status update", map[string]any{
		"order_id":   update.OrderID,
		"old_status": update.OldStatus,
		"new_status": update.NewStatus,
		"changed_by": update.ChangedBy,
	})

	notifier.HandleStatusUpdate(ctx, update)

	if err := d.Ack(false); err != nil {
		log.Error(ctx, "rabbitmq_ack_failed", "Failed to ack status update message", err)
	}
}

// sleepWithContext sleeps for the given duration or returns early if ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff calculates the next backoff duration with exponential growth capped at max.
func nextBackoff(curr, cap time.Duration) time.Duration {
	n := curr * 2
	if n > cap {
		return cap
	}
	return n
}
