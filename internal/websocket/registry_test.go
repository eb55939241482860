package websocket

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"roomwire/pkg/types"
)

type mockConn struct {
	id     string
	roomID string
	userID string

	mu        sync.Mutex
	events    []types.Event
	failSend  bool
	closed    bool
	closeCode int
	done      chan struct{}
}

var mockSeq struct {
	sync.Mutex
	n int
}

func newMockConn(userID, roomID string) *mockConn {
	mockSeq.Lock()
	mockSeq.n++
	id := fmt.Sprintf("conn-%d", mockSeq.n)
	mockSeq.Unlock()
	return &mockConn{id: id, roomID: roomID, userID: userID, done: make(chan struct{})}
}

func (m *mockConn) ID() string     { return m.id }
func (m *mockConn) RoomID() string { return m.roomID }
func (m *mockConn) UserID() string { return m.userID }

func (m *mockConn) Send(event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnectionClosed
	}
	if m.failSend {
		return ErrSendBufferFull
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockConn) CloseWithCode(code int, reason string) error {
	m.mu.Lock()
	if m.closeCode == 0 {
		m.closeCode = code
	}
	m.mu.Unlock()
	return m.Close()
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *mockConn) Done() <-chan struct{} { return m.done }

func (m *mockConn) received() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Event(nil), m.events...)
}

func (m *mockConn) typesReceived() []string {
	var out []string
	for _, ev := range m.received() {
		out = append(out, ev.EventType())
	}
	return out
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) code() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCode
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func mustConnect(t *testing.T, r *Registry, conn *mockConn) {
	t.Helper()
	if err := r.Connect(conn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

func TestRegistry_ConnectNil(t *testing.T) {
	r := NewRegistry()
	if err := r.Connect(nil); !errors.Is(err, ErrNilConnection) {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
	if r.Disconnect(nil) {
		t.Error("Disconnect(nil) should report no departure")
	}
}

func TestRegistry_ConnectAnnouncesJoinToWholeRoom(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob := newMockConn("bob", "general")
	other := newMockConn("carol", "random")

	mustConnect(t, r, alice)
	mustConnect(t, r, other)
	mustConnect(t, r, bob)

	// The joining connection receives its own user_joined.
	if got := bob.typesReceived(); !reflect.DeepEqual(got, []string{types.EventUserJoined}) {
		t.Errorf("Expected bob to see his own join, got %v", got)
	}
	if got := alice.typesReceived(); !reflect.DeepEqual(got, []string{types.EventUserJoined, types.EventUserJoined}) {
		t.Errorf("Expected alice to see two joins, got %v", got)
	}
	joined := alice.received()[1].(types.UserJoinedEvent)
	if joined.UserID != "bob" || joined.Timestamp.IsZero() {
		t.Errorf("Unexpected join event: %+v", joined)
	}
	if len(other.received()) != 1 {
		t.Errorf("Other room should only see its own join, got %v", other.typesReceived())
	}
}

func TestRegistry_ConnectDisconnectRoundTrip(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")

	mustConnect(t, r, alice)
	if !r.IsConnected("alice", "general") {
		t.Fatal("alice should be connected")
	}
	if got := r.GetOnlineUsers("general"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Expected [alice], got %v", got)
	}

	if !r.Disconnect(alice) {
		t.Error("First disconnect should report departure")
	}
	if r.Disconnect(alice) {
		t.Error("Second disconnect should be a no-op")
	}
	if r.IsConnected("alice", "general") {
		t.Error("alice should not be connected")
	}
	if got := r.GetOnlineUsers("general"); len(got) != 0 {
		t.Errorf("Expected no online users, got %v", got)
	}
	stats := r.GetStats()
	if stats["total_connections"] != 0 || stats["rooms"] != 0 || stats["users"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}

func TestRegistry_SupersedesSameUserAndRoom(t *testing.T) {
	r := NewRegistry()
	first := newMockConn("alice", "general")
	second := newMockConn("alice", "general")

	mustConnect(t, r, first)
	mustConnect(t, r, second)

	deadline := time.Now().Add(time.Second)
	for !first.isClosed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !first.isClosed() || first.code() != CloseNormal {
		t.Errorf("Superseded connection should be closed with %d, got closed=%t code=%d", CloseNormal, first.isClosed(), first.code())
	}
	if r.GetStats()["total_connections"] != 1 {
		t.Errorf("Expected one live connection, got %v", r.GetStats())
	}

	// The superseded handler's cleanup must not announce a departure.
	if r.Disconnect(first) {
		t.Error("Disconnect of superseded connection should not report departure")
	}
	if !r.IsConnected("alice", "general") {
		t.Error("Replacement connection should remain registered")
	}
	if !r.Disconnect(second) {
		t.Error("Disconnect of the live connection should report departure")
	}
}

func TestRegistry_SameUserSeveralRooms(t *testing.T) {
	r := NewRegistry()
	a1 := newMockConn("alice", "general")
	a2 := newMockConn("alice", "random")
	mustConnect(t, r, a1)
	mustConnect(t, r, a2)

	if got := r.UserRooms("alice"); !reflect.DeepEqual(got, []string{"general", "random"}) {
		t.Errorf("Expected [general random], got %v", got)
	}
	if got := r.GetOnlineUsers(""); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Expected [alice] across rooms, got %v", got)
	}

	r.Disconnect(a1)
	if !r.IsConnected("alice", "random") {
		t.Error("Leaving one room must not affect the other")
	}
}

func TestRegistry_BroadcastPreservesOrder(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob := newMockConn("bob", "general")
	mustConnect(t, r, alice)
	mustConnect(t, r, bob)
	alice.reset()
	bob.reset()

	for i := 0; i < 50; i++ {
		r.BroadcastToRoom("general", types.ChatMessageEvent{MessageID: fmt.Sprintf("m%d", i)})
	}

	for _, conn := range []*mockConn{alice, bob} {
		events := conn.received()
		if len(events) != 50 {
			t.Fatalf("Expected 50 events, got %d", len(events))
		}
		for i, ev := range events {
			if id := ev.(types.ChatMessageEvent).MessageID; id != fmt.Sprintf("m%d", i) {
				t.Fatalf("Out of order delivery at %d: %s", i, id)
			}
		}
	}

	// Broadcasting to an empty room is a no-op.
	r.BroadcastToRoom("nowhere", types.UserLeftEvent{UserID: "x"})
}

func TestRegistry_FailedDeliveryPrunesRecipient(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob := newMockConn("bob", "general")
	mustConnect(t, r, alice)
	mustConnect(t, r, bob)
	alice.reset()

	bob.mu.Lock()
	bob.failSend = true
	bob.mu.Unlock()

	r.BroadcastToRoom("general", types.ChatMessageEvent{MessageID: "m1"})

	if got := alice.typesReceived(); !reflect.DeepEqual(got, []string{types.EventMessage}) {
		t.Errorf("Healthy recipient should still receive the event, got %v", got)
	}
	if r.IsConnected("bob", "general") {
		t.Error("Failed recipient should be pruned")
	}
	if !bob.isClosed() {
		t.Error("Pruned connection should be closed")
	}

	// The handler's later Disconnect still reports the departure once.
	if !r.Disconnect(bob) {
		t.Error("Disconnect after prune should report departure")
	}
	if r.Disconnect(bob) {
		t.Error("Repeated disconnect after prune should be a no-op")
	}
}

func TestRegistry_SendPersonalMessage(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob := newMockConn("bob", "general")
	mustConnect(t, r, alice)
	mustConnect(t, r, bob)
	alice.reset()
	bob.reset()

	if !r.SendPersonalMessage("bob", "general", types.ErrorEvent{Message: "only you"}) {
		t.Error("Personal message should be delivered")
	}
	if len(alice.received()) != 0 {
		t.Error("Personal message leaked to another member")
	}
	if len(bob.received()) != 1 {
		t.Error("Recipient did not get personal message")
	}
	if r.SendPersonalMessage("bob", "random", types.ErrorEvent{Message: "x"}) {
		t.Error("No connection in that room; expected false")
	}
}

func TestRegistry_TypingStatus(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob := newMockConn("bob", "general")
	mustConnect(t, r, alice)
	mustConnect(t, r, bob)
	alice.reset()

	r.SetTypingStatus("general", "bob", true)
	r.SetTypingStatus("general", "alice", true)
	r.SetTypingStatus("general", "alice", true)

	events := alice.received()
	if len(events) != 3 {
		t.Fatalf("Every typing signal should broadcast, got %d events", len(events))
	}
	last := events[2].(types.TypingStatusEvent)
	if !reflect.DeepEqual(last.UsersTyping, []string{"alice", "bob"}) {
		t.Errorf("Expected sorted [alice bob], got %v", last.UsersTyping)
	}

	r.SetTypingStatus("general", "bob", false)
	if got := r.GetTypingUsers("general"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Expected [alice], got %v", got)
	}

	// Disconnect clears the entry and rebroadcasts the list.
	bob.reset()
	r.Disconnect(alice)
	events = bob.received()
	if len(events) == 0 {
		t.Fatal("Expected a typing_status rebroadcast after disconnect")
	}
	status, ok := events[len(events)-1].(types.TypingStatusEvent)
	if !ok || len(status.UsersTyping) != 0 {
		t.Errorf("Expected empty typing list, got %#v", events[len(events)-1])
	}
}

func TestRegistry_ExpireTyping(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	alice := newMockConn("alice", "general")
	mustConnect(t, r, alice)
	r.SetTypingStatus("general", "alice", true)
	alice.reset()

	now = now.Add(5 * time.Second)
	if n := r.ExpireTyping(10 * time.Second); n != 0 {
		t.Errorf("Nothing should expire yet, got %d", n)
	}
	if len(alice.received()) != 0 {
		t.Error("No broadcast expected when nothing expired")
	}

	now = now.Add(10 * time.Second)
	if n := r.ExpireTyping(10 * time.Second); n != 1 {
		t.Errorf("Expected 1 expired entry, got %d", n)
	}
	if got := alice.typesReceived(); !reflect.DeepEqual(got, []string{types.EventTypingStatus}) {
		t.Errorf("Expected one typing_status rebroadcast, got %v", got)
	}
}

func TestRegistry_RemoveMember(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob := newMockConn("bob", "general")
	mustConnect(t, r, alice)
	mustConnect(t, r, bob)
	alice.reset()

	if !r.RemoveMember("general", "bob", "Removed from room by admin") {
		t.Fatal("RemoveMember should find bob")
	}
	if bob.code() != CloseNormal {
		t.Errorf("Expected close code %d, got %d", CloseNormal, bob.code())
	}
	left, ok := alice.received()[0].(types.UserLeftEvent)
	if !ok || left.UserID != "bob" {
		t.Errorf("Expected user_left for bob, got %v", alice.typesReceived())
	}
	if r.Disconnect(bob) {
		t.Error("Handler cleanup after removal must not announce user_left again")
	}
	if r.RemoveMember("general", "bob", "again") {
		t.Error("Second removal should report no connection")
	}
}

func TestRegistry_DirectMessageAndNotifications(t *testing.T) {
	r := NewRegistry()
	alice := newMockConn("alice", "general")
	bob1 := newMockConn("bob", "general")
	bob2 := newMockConn("bob", "random")
	for _, c := range []*mockConn{alice, bob1, bob2} {
		mustConnect(t, r, c)
	}
	for _, c := range []*mockConn{alice, bob1, bob2} {
		c.reset()
	}

	if n := r.SendDirectMessage("alice", "bob", "psst"); n != 2 {
		t.Errorf("Expected delivery to both of bob's connections, got %d", n)
	}
	dm := bob2.received()[0].(types.DirectMessageEvent)
	if dm.SenderID != "alice" || dm.Content != "psst" {
		t.Errorf("Unexpected direct message: %+v", dm)
	}
	if len(alice.received()) != 0 {
		t.Error("Sender should not receive the direct message")
	}

	r.NotifyMessageRead("general", "m1", "bob")
	r.NotifyMessageUpdated("general", "m1", "edited", time.Now())
	r.NotifyMessageDeleted("general", "m1", types.DeletionForMe, "alice")
	r.NotifyMessageDeleted("general", "m1", types.DeletionForEveryone, "alice")

	wantAlice := []string{types.EventMessageRead, types.EventMessageUpdated, types.EventMessageDeleted, types.EventMessageDeleted}
	if got := alice.typesReceived(); !reflect.DeepEqual(got, wantAlice) {
		t.Errorf("alice: expected %v, got %v", wantAlice, got)
	}
	// for_me deletion only reaches the deleting user.
	wantBob := []string{types.EventDirectMessage, types.EventMessageRead, types.EventMessageUpdated, types.EventMessageDeleted}
	if got := bob1.typesReceived(); !reflect.DeepEqual(got, wantBob) {
		t.Errorf("bob: expected %v, got %v", wantBob, got)
	}
}

func TestRegistry_BroadcastToAll(t *testing.T) {
	r := NewRegistry()
	conns := []*mockConn{newMockConn("a", "r1"), newMockConn("b", "r2"), newMockConn("c", "r3")}
	for _, c := range conns {
		mustConnect(t, r, c)
		c.reset()
	}

	if err := r.BroadcastToAll(context.Background(), types.AnnouncementEvent{Message: "hello"}); err != nil {
		t.Fatalf("BroadcastToAll failed: %v", err)
	}
	for _, c := range conns {
		if got := c.typesReceived(); !reflect.DeepEqual(got, []string{types.EventAnnouncement}) {
			t.Errorf("%s: expected one announcement, got %v", c.userID, got)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.BroadcastToRooms(ctx, []string{"r1"}, types.AnnouncementEvent{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	a := newMockConn("a", "r1")
	b := newMockConn("b", "r2")
	mustConnect(t, r, a)
	mustConnect(t, r, b)

	if n := r.CloseAll(CloseGoingAway, "shutdown"); n != 2 {
		t.Errorf("Expected 2 closed, got %d", n)
	}
	if a.code() != CloseGoingAway || b.code() != CloseGoingAway {
		t.Errorf("Expected going-away codes, got %d and %d", a.code(), b.code())
	}
}

func TestRegistry_ConcurrentConnectDisconnect(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newMockConn(fmt.Sprintf("user-%d", i), fmt.Sprintf("room-%d", i%5))
			if err := r.Connect(conn); err != nil {
				t.Errorf("Connect failed: %v", err)
				return
			}
			r.SetTypingStatus(conn.RoomID(), conn.UserID(), true)
			r.BroadcastToRoom(conn.RoomID(), types.ChatMessageEvent{MessageID: "x"})
			r.Disconnect(conn)
		}(i)
	}
	wg.Wait()

	if stats := r.GetStats(); stats["total_connections"] != 0 || stats["typing"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}
