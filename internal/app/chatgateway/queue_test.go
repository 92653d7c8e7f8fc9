package chatgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-chat/internal/domain/orders"
)

func TestQueueEstimatorRanksActiveOrders(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ahead := orders.Order{ID: "order-0", Status: orders.StatusPending, CreatedAt: now}
	mine := orders.Order{ID: "order-1", Status: orders.StatusPending, CreatedAt: now.Add(time.Minute)}
	repo := &fakeOrders{
		orders: map[string]*orders.Order{"order-1": &mine},
		active: []orders.Order{ahead, mine},
	}

	snap, err := NewQueueEstimator(repo).SnapshotFor(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, snap.InQueue)
	assert.Equal(t, 2, snap.Position)
	assert.Equal(t, "5-10min", snap.EstimatedTime)
}

func TestQueueEstimatorTerminalSkipsActiveScan(t *testing.T) {
	done := orders.Order{ID: "order-1", Status: orders.StatusDelivered}
	repo := &fakeOrders{
		orders:  map[string]*orders.Order{"order-1": &done},
		listErr: errors.New("must not be called"),
	}

	snap, err := NewQueueEstimator(repo).SnapshotFor(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, snap.InQueue)
	assert.Equal(t, orders.StatusDelivered, snap.Status)
}

func TestQueueEstimatorUnknownOrder(t *testing.T) {
	repo := &fakeOrders{orders: map[string]*orders.Order{}}

	_, err := NewQueueEstimator(repo).SnapshotFor(context.Background(), "ghost")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
