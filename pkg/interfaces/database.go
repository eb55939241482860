package interfaces

import (
	"context"

	"roomwire/pkg/types"
)

// IdentityResolver maps a bearer credential to an active user.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*types.Identity, error)
}

// RoomAuthorizer decides whether a user may join a room. It returns
// ErrRoomNotFound when the room does not exist and false when the room is
// private and the user is not a member.
type RoomAuthorizer interface {
	RoomAccessible(ctx context.Context, roomID, userID string) (bool, error)
}

// MessageStore persists accepted chat messages and assigns their ids.
type MessageStore interface {
	PersistMessage(ctx context.Context, roomID, userID, content, messageType string, encrypted bool) (*types.StoredMessage, error)
}

// MessageLedger reads and amends persisted messages.
type MessageLedger interface {
	GetMessage(ctx context.Context, messageID string) (*types.StoredMessage, error)
	UpdateMessageContent(ctx context.Context, messageID, content string) (*types.StoredMessage, error)
	DeleteMessage(ctx context.Context, messageID string) error
	HideMessage(ctx context.Context, messageID, userID string) error
	MarkMessageRead(ctx context.Context, messageID, userID string) error
}

// ActivityRecorder accumulates per-user active time in whole seconds.
type ActivityRecorder interface {
	AddActiveTime(ctx context.Context, userID string, seconds int64) error
}

// SettingsStore exposes the global communications pause switch.
type SettingsStore interface {
	IsCommunicationsPaused(ctx context.Context) (bool, error)
	SetCommunicationsPaused(ctx context.Context, paused bool) error
}

// UserStore looks up user records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*types.User, error)
	TouchLastSeen(ctx context.Context, userID string) error
}

// DatabaseManager is the full storage collaborator.
type DatabaseManager interface {
	UserStore
	RoomAuthorizer
	MessageStore
	MessageLedger
	ActivityRecorder
	SettingsStore

	RemoveRoomMember(ctx context.Context, roomID, userID string) error

	HealthCheck(ctx context.Context) error
	Close() error
}
