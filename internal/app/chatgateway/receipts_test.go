package chatgateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/shared/logger"
)

func TestMarkReadBroadcastsOnlyWhenRowsFlip(t *testing.T) {
	messages := &fakeMessages{markReadN: 3}
	rooms := newFakeBroadcaster()
	tracker := NewReceiptTracker(messages, rooms, logger.NewLogger("test"))

	changed, err := tracker.MarkRead(context.Background(), "order-1", chat.RoleCustomer, "c1")
	require.NoError(t, err)
	assert.True(t, changed)

	// customer reading means the livreur's messages get stamped
	assert.Equal(t, chat.SenderLivreur, messages.markedParty)
	assert.Equal(t, "order-1", messages.markedOrder)

	calls := rooms.broadcasts()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].except)

	var ev MessagesReadEvent
	require.NoError(t, json.Unmarshal(calls[0].data, &ev))
	assert.Equal(t, EventMessagesRead, ev.Type)
	assert.Equal(t, "client", ev.Role)
	assert.False(t, ev.ReadAt.IsZero())

	// second ack finds nothing unread: idempotent, no broadcast
	changed, err = tracker.MarkRead(context.Background(), "order-1", chat.RoleCustomer, "c1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, rooms.broadcasts(), 1)
}

func TestMarkReadDispatcherStampsClientMessages(t *testing.T) {
	messages := &fakeMessages{markReadN: 1}
	rooms := newFakeBroadcaster()
	tracker := NewReceiptTracker(messages, rooms, logger.NewLogger("test"))

	_, err := tracker.MarkRead(context.Background(), "order-1", chat.RoleDispatcher, "c9")
	require.NoError(t, err)
	assert.Equal(t, chat.SenderClient, messages.markedParty)
}

func TestMarkReadWrapsStoreErrors(t *testing.T) {
	messages := &fakeMessages{markReadErr: errors.New("timeout")}
	rooms := newFakeBroadcaster()
	tracker := NewReceiptTracker(messages, rooms, logger.NewLogger("test"))

	_, err := tracker.MarkRead(context.Background(), "order-1", chat.RoleCustomer, "c1")
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
	assert.Empty(t, rooms.broadcasts())
}
