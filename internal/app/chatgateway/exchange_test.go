package chatgateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/sonyflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/logger"
)

func testFlake(t *testing.T) *sonyflake.Sonyflake {
	t.Helper()
	flake := sonyflake.NewSonyflake(sonyflake.Settings{
		MachineID: func() (uint16, error) { return 1, nil },
	})
	require.NotNil(t, flake)
	return flake
}

func newTestExchange(t *testing.T, messages *fakeMessages, rooms *fakeBroadcaster) *Exchange {
	t.Helper()
	return NewExchange(messages, rooms, testFlake(t), logger.NewLogger("test"))
}

func TestExchangeSendPersistsThenFansOut(t *testing.T) {
	messages := &fakeMessages{}
	rooms := newFakeBroadcaster()
	ex := newTestExchange(t, messages, rooms)

	msg, err := ex.Send(context.Background(), ports.SendMessageCommand{
		OrderID:      "order-1",
		Sender:       chat.SenderClient,
		Content:      "Bonjour",
		ConnectionID: "c1",
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.NotZero(t, msg.ID, "id is server-assigned")
	assert.Nil(t, msg.ReadAt, "new messages start unread")

	require.Len(t, messages.appended, 1)
	assert.Equal(t, "Bonjour", messages.appended[0].Content)

	calls := rooms.broadcasts()
	require.Len(t, calls, 1)
	assert.Equal(t, "order-1", calls[0].orderID)
	assert.Equal(t, "c1", calls[0].except, "sender never receives its own echo")

	var ev NewMessageEvent
	require.NoError(t, json.Unmarshal(calls[0].data, &ev))
	assert.Equal(t, EventNewMessage, ev.Type)
	assert.Equal(t, "client", ev.Sender)
	assert.Equal(t, "Bonjour", ev.Content)
	assert.Equal(t, msg.CreatedAt.UTC(), ev.Timestamp.UTC())
}

func TestExchangeSendRejectsInvalidContent(t *testing.T) {
	messages := &fakeMessages{}
	rooms := newFakeBroadcaster()
	ex := newTestExchange(t, messages, rooms)

	cases := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t "},
		{"over the cap", strings.Repeat("a", chat.MaxContentLength+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ex.Send(context.Background(), ports.SendMessageCommand{
				OrderID: "order-1",
				Sender:  chat.SenderClient,
				Content: tc.content,
			})
			assert.ErrorIs(t, err, chat.ErrInvalidMessage)
		})
	}

	assert.Empty(t, messages.appended)
	assert.Empty(t, rooms.broadcasts())
}

func TestExchangeSendStoreFailureSkipsFanout(t *testing.T) {
	messages := &fakeMessages{appendErr: errors.New("connection refused")}
	rooms := newFakeBroadcaster()
	ex := newTestExchange(t, messages, rooms)

	_, err := ex.Send(context.Background(), ports.SendMessageCommand{
		OrderID: "order-1",
		Sender:  chat.SenderLivreur,
		Content: "En route",
	})

	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
	assert.Empty(t, rooms.broadcasts(), "a message that was not persisted must not be fanned out")
}

func TestExchangeTimestampsAreMonotonicPerOrder(t *testing.T) {
	messages := &fakeMessages{}
	rooms := newFakeBroadcaster()
	ex := newTestExchange(t, messages, rooms)

	// freeze the clock so two sends race into the same instant
	frozen := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ex.now = func() time.Time { return frozen }

	first, err := ex.Send(context.Background(), ports.SendMessageCommand{
		OrderID: "order-1", Sender: chat.SenderClient, Content: "one",
	})
	require.NoError(t, err)
	second, err := ex.Send(context.Background(), ports.SendMessageCommand{
		OrderID: "order-1", Sender: chat.SenderLivreur, Content: "two",
	})
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt),
		"timestamps within one order must be strictly increasing")

	// an independent order is not pushed forward by another order's clock
	other, err := ex.Send(context.Background(), ports.SendMessageCommand{
		OrderID: "order-2", Sender: chat.SenderClient, Content: "three",
	})
	require.NoError(t, err)
	assert.Equal(t, frozen, other.CreatedAt)
}

func TestExchangeSendWithEmptyRoomStillPersists(t *testing.T) {
	// counterpart offline: nothing to fan out to, message waits in the store
	messages := &fakeMessages{}
	rooms := newFakeBroadcaster()
	ex := newTestExchange(t, messages, rooms)

	msg, err := ex.Send(context.Background(), ports.SendMessageCommand{
		OrderID:      "order-1",
		Sender:       chat.SenderClient,
		Content:      "Bonjour",
		ConnectionID: "c1",
	})
	require.NoError(t, err)
	require.Len(t, messages.appended, 1)
	assert.Nil(t, msg.ReadAt, "stays unread until the counterpart acks")
}

func TestExchangeHistoryWrapsStoreErrors(t *testing.T) {
	messages := &fakeMessages{historyErr: errors.New("timeout")}
	ex := newTestExchange(t, messages, newFakeBroadcaster())

	_, err := ex.History(context.Background(), "order-1", time.Time{})
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
}
