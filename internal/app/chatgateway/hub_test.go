package chatgateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/ports"
)

// --- shared fakes ---

type fakeMember struct {
	id       string
	identity string
	role     chat.Role
	failSend bool

	mu   sync.Mutex
	sent [][]byte
}

func newFakeMember(id, identity string, role chat.Role) *fakeMember {
	return &fakeMember{id: id, identity: identity, role: role}
}

func (m *fakeMember) ID() string       { return m.id }
func (m *fakeMember) Identity() string { return m.identity }
func (m *fakeMember) Role() chat.Role  { return m.role }

func (m *fakeMember) Send(data []byte) error {
	if m.failSend {
		return errors.New("queue full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *fakeMember) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type broadcastCall struct {
	orderID string
	except  string
	data    []byte
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	calls   []broadcastCall
	members map[string][]Member
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{members: make(map[string][]Member)}
}

func (b *fakeBroadcaster) Broadcast(orderID, except string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{orderID: orderID, except: except, data: data})
}

func (b *fakeBroadcaster) MembersOf(orderID string) []Member {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[orderID]
}

func (b *fakeBroadcaster) broadcasts() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broadcastCall, len(b.calls))
	copy(out, b.calls)
	return out
}

type fakeMessages struct {
	mu        sync.Mutex
	appended  []chat.Message
	appendErr error

	history    []chat.Message
	historyErr error

	markReadN   int64
	markReadErr error
	markedOrder string
	markedParty chat.Sender
}

func (f *fakeMessages) Append(_ context.Context, msg *chat.Message) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, *msg)
	return nil
}

func (f *fakeMessages) History(context.Context, string, time.Time) ([]chat.Message, error) {
	return f.history, f.historyErr
}

func (f *fakeMessages) MarkRead(_ context.Context, orderID string, sender chat.Sender, _ time.Time) (int64, error) {
	if f.markReadErr != nil {
		return 0, f.markReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedOrder = orderID
	f.markedParty = sender
	n := f.markReadN
	f.markReadN = 0 // subsequent acks find nothing unread
	return n, nil
}

type fakeOrders struct {
	orders     map[string]*orders.Order
	active     []orders.Order
	getErr     error
	listErr    error
	casApplied bool
	casErr     error
	history    []orders.StatusLog
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*orders.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, errNoRows
	}
	return o, nil
}

func (f *fakeOrders) UpdateStatusCAS(context.Context, string, orders.OrderStatus, orders.OrderStatus, string) (bool, error) {
	return f.casApplied, f.casErr
}

func (f *fakeOrders) ListActive(context.Context) ([]orders.Order, error) {
	return f.active, f.listErr
}

func (f *fakeOrders) ListHistory(context.Context, string) ([]orders.StatusLog, error) {
	return f.history, nil
}

var errNoRows = pgx.ErrNoRows

var _ ports.MessageRepository = (*fakeMessages)(nil)
var _ ports.OrderRepository = (*fakeOrders)(nil)

// --- hub tests ---

func TestHubJoinMovesConnectionBetweenRooms(t *testing.T) {
	hub := NewHub()
	admin := newFakeMember("c-admin", "admin-7", chat.RoleAdmin)
	hub.Register(admin)

	require.NoError(t, hub.Join(admin.ID(), "order-1"))
	require.NoError(t, hub.Join(admin.ID(), "order-2"))

	assert.Empty(t, hub.MembersOf("order-1"), "joining a second room must leave the first")
	require.Len(t, hub.MembersOf("order-2"), 1)
	assert.Equal(t, "c-admin", hub.MembersOf("order-2")[0].ID())

	room, ok := hub.RoomOf(admin.ID())
	require.True(t, ok)
	assert.Equal(t, "order-2", room)
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := NewHub()
	m := newFakeMember("c1", "user-1", chat.RoleCustomer)
	hub.Register(m)

	require.NoError(t, hub.Join(m.ID(), "order-1"))
	require.NoError(t, hub.Join(m.ID(), "order-1"))

	assert.Len(t, hub.MembersOf("order-1"), 1)
}

func TestHubJoinUnknownConnection(t *testing.T) {
	hub := NewHub()
	assert.Error(t, hub.Join("ghost", "order-1"))
}

func TestHubMembersNeverContainDeparted(t *testing.T) {
	hub := NewHub()
	a := newFakeMember("c1", "user-1", chat.RoleCustomer)
	b := newFakeMember("c2", "user-2", chat.RoleCustomer)
	hub.Register(a)
	hub.Register(b)
	require.NoError(t, hub.Join(a.ID(), "order-1"))
	require.NoError(t, hub.Join(b.ID(), "order-1"))

	hub.Leave(a.ID(), "order-1")
	hub.OnDisconnect(b.ID())
	hub.OnDisconnect(b.ID()) // repeated disconnect is harmless

	assert.Empty(t, hub.MembersOf("order-1"))
	assert.NotContains(t, hub.OpenRooms(), "order-1", "empty rooms are dropped")

	_, ok := hub.RoomOf(a.ID())
	assert.False(t, ok)
}

func TestHubLeaveWrongRoomIsNoop(t *testing.T) {
	hub := NewHub()
	m := newFakeMember("c1", "user-1", chat.RoleCustomer)
	hub.Register(m)
	require.NoError(t, hub.Join(m.ID(), "order-1"))

	hub.Leave(m.ID(), "order-2")

	assert.Len(t, hub.MembersOf("order-1"), 1)
}

func TestHubBroadcastSkipsOriginatorAndSlowPeers(t *testing.T) {
	hub := NewHub()
	sender := newFakeMember("c1", "user-1", chat.RoleCustomer)
	peer := newFakeMember("c2", "admin-1", chat.RoleAdmin)
	slow := newFakeMember("c3", "admin-2", chat.RoleDispatcher)
	slow.failSend = true

	for _, m := range []*fakeMember{sender, peer, slow} {
		hub.Register(m)
		require.NoError(t, hub.Join(m.ID(), "order-1"))
	}

	hub.Broadcast("order-1", sender.ID(), []byte(`{"type":"new_message"}`))

	assert.Zero(t, sender.sentCount(), "originator must not receive its own echo")
	assert.Equal(t, 1, peer.sentCount())
	assert.Zero(t, slow.sentCount(), "slow peer is skipped, not waited on")
}

func TestHubSessionsForSpansRooms(t *testing.T) {
	hub := NewHub()
	phone := newFakeMember("c1", "user-1", chat.RoleCustomer)
	laptop := newFakeMember("c2", "user-1", chat.RoleCustomer)
	hub.Register(phone)
	hub.Register(laptop)
	require.NoError(t, hub.Join(phone.ID(), "order-1"))

	got := hub.SessionsFor("user-1")
	assert.Len(t, got, 2, "identity lookup includes connections outside any room")

	hub.OnDisconnect(phone.ID())
	assert.Len(t, hub.SessionsFor("user-1"), 1)
}

func TestHubStats(t *testing.T) {
	hub := NewHub()
	m := newFakeMember("c1", "user-1", chat.RoleCustomer)
	hub.Register(m)
	require.NoError(t, hub.Join(m.ID(), "order-1"))

	rooms, conns := hub.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, conns)
}
