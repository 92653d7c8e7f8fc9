package statusservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/contracts"
	"delivery-chat/internal/shared/logger"
)

// passthroughUoW runs the function without a real transaction.
type passthroughUoW struct {
	beginErr error
}

func (u *passthroughUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.beginErr != nil {
		return u.beginErr
	}
	return fn(ctx)
}

type stubOrders struct {
	order      *orders.Order
	getErr     error
	casApplied bool
	casErr     error

	casCalls int
	history  []orders.StatusLog
}

func (s *stubOrders) GetByID(context.Context, string) (*orders.Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.order, nil
}

func (s *stubOrders) UpdateStatusCAS(_ context.Context, _ string, _, _ orders.OrderStatus, _ string) (bool, error) {
	s.casCalls++
	return s.casApplied, s.casErr
}

func (s *stubOrders) ListActive(context.Context) ([]orders.Order, error) { return nil, nil }

func (s *stubOrders) ListHistory(context.Context, string) ([]orders.StatusLog, error) {
	return s.history, nil
}

type stubPublisher struct {
	published []contracts.StatusUpdateMessage
	err       error
}

func (p *stubPublisher) PublishStatusUpdate(upd contracts.StatusUpdateMessage) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, upd)
	return nil
}

func newTestService(repo *stubOrders, pub *stubPublisher) *Service {
	return NewService(&passthroughUoW{}, repo, pub, logger.NewLogger("test"))
}

func TestTransitionAppliesAndPublishes(t *testing.T) {
	repo := &stubOrders{
		order:      &orders.Order{ID: "order-1", Status: orders.StatusPending},
		casApplied: true,
	}
	pub := &stubPublisher{}
	svc := newTestService(repo, pub)

	result, err := svc.Transition(context.Background(), ports.TransitionCommand{
		OrderID:   "order-1",
		Next:      orders.StatusProcessing,
		ChangedBy: "admin-7",
	})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, result.Old)
	assert.Equal(t, orders.StatusProcessing, result.New)
	assert.False(t, result.ChangedAt.IsZero())

	require.Len(t, pub.published, 1)
	assert.Equal(t, "order-1", pub.published[0].OrderID)
	assert.Equal(t, "pending", pub.published[0].OldStatus)
	assert.Equal(t, "processing", pub.published[0].NewStatus)
	assert.Equal(t, "admin-7", pub.published[0].ChangedBy)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	cases := []struct {
		name string
		from orders.OrderStatus
		to   orders.OrderStatus
	}{
		{"skipping the pipeline", orders.StatusProcessing, orders.StatusDelivered},
		{"resurrecting a delivered order", orders.StatusDelivered, orders.StatusProcessing},
		{"uncancelling", orders.StatusCancelled, orders.StatusPending},
		{"self loop", orders.StatusPending, orders.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubOrders{order: &orders.Order{ID: "order-1", Status: tc.from}}
			pub := &stubPublisher{}
			svc := newTestService(repo, pub)

			_, err := svc.Transition(context.Background(), ports.TransitionCommand{
				OrderID: "order-1",
				Next:    tc.to,
			})

			assert.ErrorIs(t, err, orders.ErrInvalidTransition)
			assert.Zero(t, repo.casCalls, "rejected transitions never reach the store")
			assert.Empty(t, pub.published, "rejected transitions are never published")
		})
	}
}

func TestTransitionLosingTheSwapIsRejected(t *testing.T) {
	repo := &stubOrders{
		order:      &orders.Order{ID: "order-1", Status: orders.StatusPending},
		casApplied: false, // someone else moved the order first
	}
	pub := &stubPublisher{}
	svc := newTestService(repo, pub)

	_, err := svc.Transition(context.Background(), ports.TransitionCommand{
		OrderID: "order-1",
		Next:    orders.StatusProcessing,
	})

	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Empty(t, pub.published)
}

func TestTransitionUnknownOrder(t *testing.T) {
	repo := &stubOrders{getErr: pgx.ErrNoRows}
	svc := newTestService(repo, &stubPublisher{})

	_, err := svc.Transition(context.Background(), ports.TransitionCommand{
		OrderID: "ghost",
		Next:    orders.StatusProcessing,
	})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestTransitionSurvivesPublishFailure(t *testing.T) {
	repo := &stubOrders{
		order:      &orders.Order{ID: "order-1", Status: orders.StatusShipped},
		casApplied: true,
	}
	pub := &stubPublisher{err: errors.New("broker down")}
	svc := newTestService(repo, pub)

	result, err := svc.Transition(context.Background(), ports.TransitionCommand{
		OrderID:   "order-1",
		Next:      orders.StatusDelivered,
		ChangedBy: "dispatcher-2",
	})

	require.NoError(t, err, "the committed transition stands even when the broker is down")
	assert.Equal(t, orders.StatusDelivered, result.New)
}

func TestHistoryPassesThrough(t *testing.T) {
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := &stubOrders{history: []orders.StatusLog{
		{OrderID: "order-1", Status: orders.StatusPending, ChangedBy: "system", ChangedAt: ts},
		{OrderID: "order-1", Status: orders.StatusProcessing, ChangedBy: "admin-7", ChangedAt: ts.Add(time.Minute)},
	}}
	svc := newTestService(repo, &stubPublisher{})

	hist, err := svc.History(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, orders.StatusProcessing, hist[1].Status)
}
