package moderation

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"roomwire/pkg/types"
)

// Config holds moderation limits.
type Config struct {
	RateLimitPerMinute int
	MaxMessageLength   int
	BannedWords        []string
}

// Moderator applies the rate limit and content policy to inbound chat
// messages.
type Moderator struct {
	limiter *RateLimiter
	filter  *ProfanityFilter
	cfg     Config
}

// NewModerator builds a moderator around an existing limiter so the limiter
// can be shared with a cleanup janitor.
func NewModerator(cfg Config, limiter *RateLimiter) *Moderator {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	words := cfg.BannedWords
	if words == nil {
		words = DefaultBannedWords
	}
	return &Moderator{
		limiter: limiter,
		filter:  NewProfanityFilter(words),
		cfg:     cfg,
	}
}

// Admit charges one message against userID's window.
func (m *Moderator) Admit(userID string) error {
	if !m.limiter.CheckRateLimit(userID, m.cfg.RateLimitPerMinute) {
		return fmt.Errorf("%w: user=%s max=%d", ErrRateLimitExceeded, userID, m.cfg.RateLimitPerMinute)
	}
	return nil
}

// Screen applies the content policy for a message of the given effective
// type. Only plain text is inspected: it is length checked and censored.
// Encrypted and media payloads pass through untouched.
func (m *Moderator) Screen(content, messageType string) (string, error) {
	if messageType != types.MessageTypeText {
		return content, nil
	}
	if m.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(content) > m.cfg.MaxMessageLength {
		return "", fmt.Errorf("%w: max=%d", ErrMessageTooLong, m.cfg.MaxMessageLength)
	}
	return m.filter.CensorText(content), nil
}

// RejectionMessage maps a moderation error to the text sent to the client.
func (m *Moderator) RejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		return RateLimitMessage(m.cfg.RateLimitPerMinute)
	case errors.Is(err, ErrMessageTooLong):
		return MessageTooLongMessage(m.cfg.MaxMessageLength)
	default:
		return "Message rejected"
	}
}

func (m *Moderator) Limiter() *RateLimiter { return m.limiter }

func (m *Moderator) Filter() *ProfanityFilter { return m.filter }
