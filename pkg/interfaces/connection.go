package interfaces

import "roomwire/pkg/types"

// Connection is one live client transport bound to a single room for its
// whole lifetime. Implementations must be safe for concurrent use.
type Connection interface {
	// ID is unique per connection, including repeat connections by the same
	// user to the same room.
	ID() string
	RoomID() string
	UserID() string

	// Send enqueues an event without blocking. A non-nil error means the
	// connection is no longer deliverable and should be pruned.
	Send(event types.Event) error

	// CloseWithCode sends a close frame with the given code and reason, then
	// releases the transport.
	CloseWithCode(code int, reason string) error

	// Close releases the transport. Safe to call more than once.
	Close() error

	// Done is closed once the connection has been closed.
	Done() <-chan struct{}
}
