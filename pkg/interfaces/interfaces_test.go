package interfaces_test

import (
	"context"
	"errors"
	"testing"

	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

type mockConnection struct{ done chan struct{} }

func (m *mockConnection) ID() string                                  { return "c1" }
func (m *mockConnection) RoomID() string                              { return "r1" }
func (m *mockConnection) UserID() string                              { return "u1" }
func (m *mockConnection) Send(event types.Event) error                { return nil }
func (m *mockConnection) CloseWithCode(code int, reason string) error { return nil }
func (m *mockConnection) Close() error                                { return nil }
func (m *mockConnection) Done() <-chan struct{}                       { return m.done }

type mockDB struct{}

func (m *mockDB) GetUser(ctx context.Context, userID string) (*types.User, error) {
	return nil, interfaces.ErrUserNotFound
}
func (m *mockDB) TouchLastSeen(ctx context.Context, userID string) error { return nil }
func (m *mockDB) RoomAccessible(ctx context.Context, roomID, userID string) (bool, error) {
	return false, interfaces.ErrRoomNotFound
}
func (m *mockDB) PersistMessage(ctx context.Context, roomID, userID, content, messageType string, encrypted bool) (*types.StoredMessage, error) {
	return &types.StoredMessage{ID: "m1", RoomID: roomID, UserID: userID, Content: content, MessageType: messageType, IsEncrypted: encrypted}, nil
}
func (m *mockDB) GetMessage(ctx context.Context, messageID string) (*types.StoredMessage, error) {
	return nil, interfaces.ErrMessageNotFound
}
func (m *mockDB) UpdateMessageContent(ctx context.Context, messageID, content string) (*types.StoredMessage, error) {
	return nil, interfaces.ErrMessageNotFound
}
func (m *mockDB) DeleteMessage(ctx context.Context, messageID string) error          { return nil }
func (m *mockDB) HideMessage(ctx context.Context, messageID, userID string) error    { return nil }
func (m *mockDB) MarkMessageRead(ctx context.Context, messageID, userID string) error { return nil }
func (m *mockDB) AddActiveTime(ctx context.Context, userID string, seconds int64) error { return nil }
func (m *mockDB) IsCommunicationsPaused(ctx context.Context) (bool, error)            { return false, nil }
func (m *mockDB) SetCommunicationsPaused(ctx context.Context, paused bool) error      { return nil }
func (m *mockDB) RemoveRoomMember(ctx context.Context, roomID, userID string) error   { return nil }
func (m *mockDB) HealthCheck(ctx context.Context) error                               { return nil }
func (m *mockDB) Close() error                                                        { return nil }

func TestConnection_InterfaceContract(t *testing.T) {
	var conn interfaces.Connection = &mockConnection{done: make(chan struct{})}

	_ = conn.ID()
	_ = conn.RoomID()
	_ = conn.UserID()
	_ = conn.Send(types.UserLeftEvent{UserID: "u1"})
	_ = conn.CloseWithCode(1000, "bye")
	_ = conn.Close()
	_ = conn.Done()
}

func TestDatabaseManager_InterfaceContract(t *testing.T) {
	var db interfaces.DatabaseManager = &mockDB{}
	ctx := context.Background()

	if _, err := db.GetUser(ctx, "u1"); !errors.Is(err, interfaces.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	if _, err := db.RoomAccessible(ctx, "r1", "u1"); !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
	if _, err := db.GetMessage(ctx, "m404"); !errors.Is(err, interfaces.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound, got %v", err)
	}
	msg, err := db.PersistMessage(ctx, "r1", "u1", "hi", types.MessageTypeText, false)
	if err != nil || msg.Content != "hi" {
		t.Errorf("Unexpected PersistMessage result: %v, %v", msg, err)
	}

	// The narrow collaborator interfaces are satisfied by the full manager.
	var _ interfaces.RoomAuthorizer = db
	var _ interfaces.MessageStore = db
	var _ interfaces.MessageLedger = db
	var _ interfaces.ActivityRecorder = db
	var _ interfaces.SettingsStore = db
	var _ interfaces.UserStore = db
}
