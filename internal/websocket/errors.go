package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
)

// Handler-related errors
var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrRoomForbidden = errors.New("room access denied")
	ErrAuthTimeout   = errors.New("authentication timed out")
)
