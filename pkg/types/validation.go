package types

import (
	"regexp"
)

// Compiled once; identifiers are checked on every upgrade and admin call.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	return isValidID(userID)
}

// IsValidRoomID checks if a room ID meets format requirements.
func IsValidRoomID(roomID string) bool {
	return isValidID(roomID)
}

func isValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// EffectiveMessageType resolves the stored kind of an inbound chat message.
// The encrypted flag wins over any declared kind; declared media kinds are
// kept; everything else is plain text.
func EffectiveMessageType(declared string, encrypted bool) string {
	if encrypted {
		return MessageTypeEncrypted
	}
	switch declared {
	case MessageTypeImage, MessageTypeFile, MessageTypeVideo, MessageTypeAudio:
		return declared
	default:
		return MessageTypeText
	}
}
