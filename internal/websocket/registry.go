package websocket

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

// Close codes used by the registry and handler.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

// Registry tracks live connections by room and by (user, room).
//
// Lock order is r.mu before room.mu. Each room's mutex serializes delivery to
// that room, so events broadcast to a room arrive at every member in the
// order the broadcasts were invoked.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	// userID -> roomID -> conn
	users map[string]map[string]interfaces.Connection
	// connIDs removed by failed delivery whose handler has not disconnected yet
	pruned map[string]struct{}
	now    func() time.Time
}

type room struct {
	mu     sync.Mutex
	conns  map[string]interfaces.Connection // connID -> conn
	typing map[string]time.Time             // userID -> last signal
}

func newRoom() *room {
	return &room{
		conns:  make(map[string]interfaces.Connection),
		typing: make(map[string]time.Time),
	}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		users:  make(map[string]map[string]interfaces.Connection),
		pruned: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Connect registers conn in its room and broadcasts user_joined to the room,
// the new connection included. A live connection for the same user and room
// is superseded: it is unregistered and closed.
func (r *Registry) Connect(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	userID, roomID := conn.UserID(), conn.RoomID()

	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom()
		r.rooms[roomID] = rm
	}
	rm.mu.Lock()

	if r.users[userID] == nil {
		r.users[userID] = make(map[string]interfaces.Connection)
	}
	prior := r.users[userID][roomID]
	if prior != nil {
		delete(rm.conns, prior.ID())
	}
	r.users[userID][roomID] = conn
	rm.conns[conn.ID()] = conn
	r.mu.Unlock()

	failed := rm.deliverLocked(types.UserJoinedEvent{UserID: userID, Timestamp: r.now().UTC()})
	rm.mu.Unlock()

	if prior != nil {
		log.Printf("Superseding connection %s: user=%s room=%s", prior.ID(), userID, roomID)
		go func() {
			if err := prior.CloseWithCode(CloseNormal, "Superseded by a new connection"); err != nil {
				log.Printf("Failed to close superseded connection: %v", err)
			}
		}()
	}
	r.prune(failed)

	log.Printf("Connection registered: id=%s user=%s room=%s", conn.ID(), userID, roomID)
	return nil
}

// Disconnect removes conn and clears its user's typing entry in the room. It
// is idempotent. The result reports whether the user departed the room, so
// the caller should announce user_left; it is false for repeat calls and for
// a connection that was superseded or administratively removed.
func (r *Registry) Disconnect(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}
	userID, roomID := conn.UserID(), conn.RoomID()

	r.mu.Lock()
	if _, wasPruned := r.pruned[conn.ID()]; wasPruned {
		delete(r.pruned, conn.ID())
		_, stillHere := r.users[userID][roomID]
		r.mu.Unlock()
		return !stillHere
	}

	current, ok := r.users[userID][roomID]
	if !ok || current.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	typingCleared := r.removeLocked(conn)
	r.mu.Unlock()

	if typingCleared {
		r.broadcastTyping(roomID)
	}
	log.Printf("Connection unregistered: id=%s user=%s room=%s", conn.ID(), userID, roomID)
	return true
}

// removeLocked drops conn from both maps. r.mu must be held for writing.
// It reports whether a typing entry was cleared.
func (r *Registry) removeLocked(conn interfaces.Connection) bool {
	userID, roomID := conn.UserID(), conn.RoomID()

	if rooms, ok := r.users[userID]; ok {
		if current, ok := rooms[roomID]; ok && current.ID() == conn.ID() {
			delete(rooms, roomID)
		}
		if len(rooms) == 0 {
			delete(r.users, userID)
		}
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delete(rm.conns, conn.ID())
	_, typing := rm.typing[userID]
	if _, stillHere := r.users[userID][roomID]; !stillHere {
		delete(rm.typing, userID)
	} else {
		typing = false
	}
	if len(rm.conns) == 0 {
		delete(r.rooms, roomID)
		return false
	}
	return typing
}

// prune removes connections whose delivery failed and closes them. The
// handler that owns each one still calls Disconnect, which then reports the
// departure.
func (r *Registry) prune(failed []interfaces.Connection) {
	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	var typingRooms []string
	for _, conn := range failed {
		current, ok := r.users[conn.UserID()][conn.RoomID()]
		if !ok || current.ID() != conn.ID() {
			continue
		}
		if r.removeLocked(conn) {
			typingRooms = append(typingRooms, conn.RoomID())
		}
		r.pruned[conn.ID()] = struct{}{}
	}
	r.mu.Unlock()

	for _, conn := range failed {
		log.Printf("Pruning connection %s after failed delivery: user=%s room=%s", conn.ID(), conn.UserID(), conn.RoomID())
		_ = conn.Close()
	}
	for _, roomID := range typingRooms {
		r.broadcastTyping(roomID)
	}
}

func (rm *room) deliverLocked(event types.Event) []interfaces.Connection {
	var failed []interfaces.Connection
	for _, conn := range rm.conns {
		if err := conn.Send(event); err != nil {
			failed = append(failed, conn)
		}
	}
	return failed
}

func (r *Registry) getRoom(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// BroadcastToRoom delivers event to every connection in the room. Delivery is
// best effort: failed recipients are pruned and the rest still receive it.
func (r *Registry) BroadcastToRoom(roomID string, event types.Event) {
	rm := r.getRoom(roomID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	failed := rm.deliverLocked(event)
	rm.mu.Unlock()
	r.prune(failed)
}

// SendPersonalMessage delivers event to the user's connection in the room,
// if there is one.
func (r *Registry) SendPersonalMessage(userID, roomID string, event types.Event) bool {
	r.mu.RLock()
	conn, ok := r.users[userID][roomID]
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok || rm == nil {
		return false
	}

	rm.mu.Lock()
	err := conn.Send(event)
	rm.mu.Unlock()
	if err != nil {
		r.prune([]interfaces.Connection{conn})
		return false
	}
	return true
}

// BroadcastToRooms fans event out to several rooms concurrently. Order within
// each room is preserved.
func (r *Registry) BroadcastToRooms(ctx context.Context, roomIDs []string, event types.Event) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, roomID := range roomIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.BroadcastToRoom(roomID, event)
			return nil
		})
	}
	return g.Wait()
}

// BroadcastToAll delivers event to every room that has a live connection.
func (r *Registry) BroadcastToAll(ctx context.Context, event types.Event) error {
	r.mu.RLock()
	roomIDs := make([]string, 0, len(r.rooms))
	for roomID := range r.rooms {
		roomIDs = append(roomIDs, roomID)
	}
	r.mu.RUnlock()

	return r.BroadcastToRooms(ctx, roomIDs, event)
}

// GetOnlineUsers returns the sorted ids of users with a live connection in
// roomID, or in any room when roomID is empty.
func (r *Registry) GetOnlineUsers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := []string{}
	for userID, rooms := range r.users {
		if roomID == "" {
			if len(rooms) > 0 {
				users = append(users, userID)
			}
			continue
		}
		if _, ok := rooms[roomID]; ok {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// IsConnected reports whether the user has a live connection in the room.
func (r *Registry) IsConnected(userID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID][roomID]
	return ok
}

// UserRooms returns the sorted rooms where the user is connected.
func (r *Registry) UserRooms(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.users[userID]))
	for roomID := range r.users[userID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// RemoveMember force-closes the user's connection in the room with a normal
// closure and announces user_left. It reports whether a connection existed.
func (r *Registry) RemoveMember(roomID, userID, reason string) bool {
	r.mu.Lock()
	conn, ok := r.users[userID][roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	typingCleared := r.removeLocked(conn)
	r.mu.Unlock()

	if err := conn.CloseWithCode(CloseNormal, reason); err != nil {
		log.Printf("Failed to close removed member connection: %v", err)
	}
	r.BroadcastToRoom(roomID, types.UserLeftEvent{UserID: userID})
	if typingCleared {
		r.broadcastTyping(roomID)
	}
	log.Printf("Member removed: user=%s room=%s reason=%q", userID, roomID, reason)
	return true
}

// SendDirectMessage delivers a direct message to every connection of the
// recipient. It returns the number of connections reached.
func (r *Registry) SendDirectMessage(senderID, recipientID, content string) int {
	event := types.DirectMessageEvent{SenderID: senderID, Content: content, Timestamp: r.now().UTC()}
	delivered := 0
	for _, roomID := range r.UserRooms(recipientID) {
		if r.SendPersonalMessage(recipientID, roomID, event) {
			delivered++
		}
	}
	return delivered
}

// NotifyMessageRead tells the room that userID has read messageID.
func (r *Registry) NotifyMessageRead(roomID, messageID, userID string) {
	r.BroadcastToRoom(roomID, types.MessageReadEvent{MessageID: messageID, UserID: userID, Timestamp: r.now().UTC()})
}

// NotifyMessageUpdated tells the room that a message was edited.
func (r *Registry) NotifyMessageUpdated(roomID, messageID, content string, editedAt time.Time) {
	r.BroadcastToRoom(roomID, types.MessageUpdatedEvent{MessageID: messageID, Content: content, EditedAt: editedAt.UTC()})
}

// NotifyMessageDeleted announces a deletion. A for_me deletion only reaches
// the deleting user's connection in that room.
func (r *Registry) NotifyMessageDeleted(roomID, messageID, deletionType, deletedBy string) {
	event := types.MessageDeletedEvent{MessageID: messageID, DeletionType: deletionType, DeletedBy: deletedBy}
	if deletionType == types.DeletionForMe {
		r.SendPersonalMessage(deletedBy, roomID, event)
		return
	}
	r.BroadcastToRoom(roomID, event)
}

// CloseAll closes every registered connection with code and reason. Each
// connection's handler then runs its normal cleanup. It returns the number of
// connections closed.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.RLock()
	var conns []interfaces.Connection
	for _, byRoom := range r.users {
		for _, conn := range byRoom {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.CloseWithCode(code, reason); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	return len(conns)
}

// GetStats returns registry counters.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	typing := 0
	for _, rm := range r.rooms {
		rm.mu.Lock()
		total += len(rm.conns)
		typing += len(rm.typing)
		rm.mu.Unlock()
	}
	return map[string]int{
		"total_connections": total,
		"rooms":             len(r.rooms),
		"users":             len(r.users),
		"typing":            typing,
	}
}
