package types

import (
	"encoding/json"
	"time"
)

// Outbound event tags.
const (
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventTypingStatus   = "typing_status"
	EventMessage        = "message"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventMessageRead    = "message_read"
	EventDirectMessage  = "direct_message"
	EventAnnouncement   = "announcement"
	EventError          = "error"
)

// Event is an outbound server event. Every implementation marshals to a JSON
// object whose "type" member carries EventType().
type Event interface {
	EventType() string
}

type UserJoinedEvent struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (UserJoinedEvent) EventType() string { return EventUserJoined }

func (e UserJoinedEvent) MarshalJSON() ([]byte, error) {
	type alias UserJoinedEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventUserJoined, alias(e)})
}

type UserLeftEvent struct {
	UserID string `json:"user_id"`
}

func (UserLeftEvent) EventType() string { return EventUserLeft }

func (e UserLeftEvent) MarshalJSON() ([]byte, error) {
	type alias UserLeftEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventUserLeft, alias(e)})
}

// TypingStatusEvent always carries the full set of typing users in a room.
type TypingStatusEvent struct {
	UsersTyping []string `json:"users_typing"`
}

func (TypingStatusEvent) EventType() string { return EventTypingStatus }

func (e TypingStatusEvent) MarshalJSON() ([]byte, error) {
	type alias TypingStatusEvent
	if e.UsersTyping == nil {
		e.UsersTyping = []string{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventTypingStatus, alias(e)})
}

// ChatMessageEvent is the enriched broadcast form of an accepted chat message.
type ChatMessageEvent struct {
	MessageID   string    `json:"message_id"`
	Content     string    `json:"content"`
	UserID      string    `json:"user_id"`
	SenderName  string    `json:"sender_name"`
	User        Sender    `json:"user"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
	IsEncrypted bool      `json:"is_encrypted"`
}

func (ChatMessageEvent) EventType() string { return EventMessage }

func (e ChatMessageEvent) MarshalJSON() ([]byte, error) {
	type alias ChatMessageEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventMessage, alias(e)})
}

// NewChatMessageEvent builds the broadcast event for a persisted message.
func NewChatMessageEvent(msg *StoredMessage, sender Identity) ChatMessageEvent {
	return ChatMessageEvent{
		MessageID:   msg.ID,
		Content:     msg.Content,
		UserID:      sender.UserID,
		SenderName:  sender.Username,
		User:        sender.Sender(),
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt,
		IsEncrypted: msg.IsEncrypted,
	}
}

type MessageUpdatedEvent struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at"`
}

func (MessageUpdatedEvent) EventType() string { return EventMessageUpdated }

func (e MessageUpdatedEvent) MarshalJSON() ([]byte, error) {
	type alias MessageUpdatedEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventMessageUpdated, alias(e)})
}

type MessageDeletedEvent struct {
	MessageID    string `json:"message_id"`
	DeletionType string `json:"deletion_type"`
	DeletedBy    string `json:"deleted_by"`
}

func (MessageDeletedEvent) EventType() string { return EventMessageDeleted }

func (e MessageDeletedEvent) MarshalJSON() ([]byte, error) {
	type alias MessageDeletedEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventMessageDeleted, alias(e)})
}

type MessageReadEvent struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (MessageReadEvent) EventType() string { return EventMessageRead }

func (e MessageReadEvent) MarshalJSON() ([]byte, error) {
	type alias MessageReadEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventMessageRead, alias(e)})
}

type DirectMessageEvent struct {
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (DirectMessageEvent) EventType() string { return EventDirectMessage }

func (e DirectMessageEvent) MarshalJSON() ([]byte, error) {
	type alias DirectMessageEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventDirectMessage, alias(e)})
}

// AnnouncementEvent is an operator broadcast delivered to every room.
type AnnouncementEvent struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (AnnouncementEvent) EventType() string { return EventAnnouncement }

func (e AnnouncementEvent) MarshalJSON() ([]byte, error) {
	type alias AnnouncementEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventAnnouncement, alias(e)})
}

// ErrorEvent is sent only to the connection whose input caused it.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) EventType() string { return EventError }

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type alias ErrorEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{EventError, alias(e)})
}
