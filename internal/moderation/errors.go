package moderation

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMessageTooLong    = errors.New("message too long")
)

// RateLimitMessage is the user-facing text for a rejected message.
func RateLimitMessage(maxPerMinute int) string {
	return fmt.Sprintf("Rate limit exceeded. Maximum %d messages per minute.", maxPerMinute)
}

// MessageTooLongMessage is the user-facing text for an oversized message.
func MessageTooLongMessage(maxLength int) string {
	return fmt.Sprintf("Message too long. Maximum %d characters allowed.", maxLength)
}
