package interfaces

import (
	"context"
	"time"
)

// SessionAccounting measures how long each connection stays open and credits
// the elapsed time to its user.
type SessionAccounting interface {
	Start(connID string)
	Finish(ctx context.Context, connID, userID string) (time.Duration, error)
}
