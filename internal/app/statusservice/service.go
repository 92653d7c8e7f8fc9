package statusservice

import (
	"context"
	"fmt"
	"time"

	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/contracts"
	"delivery-chat/internal/shared/logger"
	"delivery-chat/internal/shared/metrics"
)

// StatusPublisher announces committed transitions to the chat gateways.
type StatusPublisher interface {
	PublishStatusUpdate(upd contracts.StatusUpdateMessage) error
}

// Service is the order status state machine. Transitions are checked against
// the allowed edges and applied with a compare-and-swap inside a transaction,
// so two racing updates cannot both win from the same expected status.
type Service struct {
	uow       ports.UnitOfWork
	orders    ports.OrderRepository
	publisher StatusPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewService wires the status service.
func NewService(uow ports.UnitOfWork, ordersRepo ports.OrderRepository, publisher StatusPublisher, log *logger.Logger) *Service {
	return &Service{
		uow:       uow,
		orders:    ordersRepo,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Transition applies one status change. The update is published to the fanout
// exchange only after the transaction commits; a lost publish degrades to
// missing live notifications, never to inconsistent state.
func (service *Service) Transition(ctx context.Context, cmd ports.TransitionCommand) (*ports.TransitionResult, error) {
	var result *ports.TransitionResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		order, err := service.orders.GetByID(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}

		if !orders.CanTransition(order.Status, cmd.Next) {
			return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, order.Status, cmd.Next)
		}

		applied, err := service.orders.UpdateStatusCAS(txCtx, cmd.OrderID, order.Status, cmd.Next, cmd.ChangedBy)
		if err != nil {
			return err
		}
		if !applied {
			// a concurrent transition won the swap
			return fmt.Errorf("%w: order %s changed concurrently", orders.ErrInvalidTransition, cmd.OrderID)
		}

		result = &ports.TransitionResult{
			OrderID:   cmd.OrderID,
			Old:       order.Status,
			New:       cmd.Next,
			ChangedAt: service.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StatusUpdates.Inc()
	service.log.Info(ctx, "status_transitioned", "Order status changed", map[string]any{
		"order_id":   result.OrderID,
		"old_status": string(result.Old),
		"new_status": string(result.New),
		"changed_by": cmd.ChangedBy,
	})

	if err := service.publisher.PublishStatusUpdate(contracts.StatusUpdateMessage{
		OrderID:   result.OrderID,
		OldStatus: string(result.Old),
		NewStatus: string(result.New),
		ChangedBy: cmd.ChangedBy,
		Timestamp: result.ChangedAt,
	}); err != nil {
		service.log.Error(ctx, "status_publish_failed", "Failed to publish status update", err)
	}

	return result, nil
}

// History returns the order's audit trail, oldest first.
func (service *Service) History(ctx context.Context, orderID string) ([]orders.StatusLog, error) {
	return service.orders.ListHistory(ctx, orderID)
}

var _ ports.StatusService = (*Service)(nil)
