package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"roomwire/pkg/types"
)

// DefaultSendBuffer is the number of outbound frames a connection may queue.
const DefaultSendBuffer = 100

// Connection wraps a gorilla websocket with a single writer goroutine.
// All data frames go through writeCh; control frames use WriteControl, which
// gorilla allows concurrently with the writer.
type Connection struct {
	conn    *websocket.Conn
	writeCh chan []byte

	id     string
	roomID string
	userID string

	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps conn for userID in roomID and starts its writer.
func NewConnection(conn *websocket.Conn, roomID, userID string, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		id:           uuid.New().String(),
		roomID:       roomID,
		userID:       userID,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) RoomID() string { return c.roomID }
func (c *Connection) UserID() string { return c.userID }

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// A failed write leaves the transport unusable; closing it
				// makes later sends fail so the registry prunes us.
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send marshals event and queues it for the writer. It never blocks: a full
// buffer is reported as ErrSendBufferFull.
func (c *Connection) Send(event types.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.enqueue(data)
}

// enqueue hands data to the writer. When Close races the enqueue, both select
// cases may be ready, so a closed connection is re-checked after queueing.
func (c *Connection) enqueue(data []byte) error {
	select {
	case c.writeCh <- data:
		select {
		case <-c.ctx.Done():
			return ErrConnectionClosed
		default:
			return nil
		}
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// CloseWithCode sends a close frame carrying code and reason, then closes.
func (c *Connection) CloseWithCode(code int, reason string) error {
	select {
	case <-c.ctx.Done():
		return nil
	default:
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	return c.Close()
}

// Close stops the writer and closes the underlying transport once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
