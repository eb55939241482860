package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRecordFailed    = errors.New("failed to record active time")
)
