package types

import "errors"

var (
	ErrInvalidUserID     = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRoomID     = errors.New("room ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrMalformedEvent    = errors.New("malformed event payload")
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrMissingEventField = errors.New("required event field missing")
)
