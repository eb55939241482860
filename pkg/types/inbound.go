package types

import (
	"encoding/json"
	"fmt"
)

// Inbound event tags.
const (
	InboundTyping  = "typing"
	InboundMessage = "message"
)

// InboundEvent is a decoded client payload. The set is closed: TypingInput
// and MessageInput are the only implementations.
type InboundEvent interface {
	inboundType() string
}

type TypingInput struct {
	IsTyping bool `json:"is_typing"`
}

func (TypingInput) inboundType() string { return InboundTyping }

type MessageInput struct {
	Content     string `json:"content"`
	IsEncrypted bool   `json:"is_encrypted"`
	MessageType string `json:"message_type"`
}

func (MessageInput) inboundType() string { return InboundMessage }

// DecodeInbound parses one client payload. A payload that is not a JSON
// object or carries a field of the wrong JSON type is ErrMalformedEvent; a
// missing "type" is ErrMissingEventField and an unrecognized one is
// ErrUnknownEventType.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if envelope.Type == nil {
		return nil, fmt.Errorf("%w: type", ErrMissingEventField)
	}

	switch *envelope.Type {
	case InboundTyping:
		var ev TypingInput
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil
	case InboundMessage:
		var ev MessageInput
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, *envelope.Type)
	}
}
