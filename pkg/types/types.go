package types

import (
	"time"
)

// Message content kinds carried in the message_type field.
const (
	MessageTypeText      = "text"
	MessageTypeImage     = "image"
	MessageTypeFile      = "file"
	MessageTypeVideo     = "video"
	MessageTypeAudio     = "audio"
	MessageTypeEncrypted = "encrypted"
)

// Deletion scopes for message_deleted notifications.
const (
	DeletionForMe       = "for_me"
	DeletionForEveryone = "for_everyone"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record behind an authenticated connection.
type User struct {
	ID              string     `json:"id" db:"id"`
	Username        string     `json:"username" db:"username"`
	AvatarURL       *string    `json:"avatar_url" db:"avatar_url"`
	Role            string     `json:"role" db:"role"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	TotalActiveTime int64      `json:"total_active_time" db:"total_active_time"`
	LastSeen        *time.Time `json:"last_seen,omitempty" db:"last_seen"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// IsAdmin reports whether the user may call administrative endpoints.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Room is a chat room. Private rooms admit members only.
type Room struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsPrivate bool      `json:"is_private" db:"is_private"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StoredMessage is a chat message as persisted by the message store.
type StoredMessage struct {
	ID          string     `json:"id" db:"id"`
	RoomID      string     `json:"room_id" db:"room_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Content     string     `json:"content" db:"content"`
	MessageType string     `json:"message_type" db:"message_type"`
	IsEncrypted bool       `json:"is_encrypted" db:"is_encrypted"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty" db:"edited_at"`
}

// Sender is the public projection of a user embedded in message events.
type Sender struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// Identity is what the connection handler knows about an authenticated peer.
type Identity struct {
	UserID    string
	Username  string
	AvatarURL *string
	Role      string
}

// Sender returns the public projection used in outbound message events.
func (i Identity) Sender() Sender {
	return Sender{ID: i.UserID, Username: i.Username, AvatarURL: i.AvatarURL}
}
