package websocket

import (
	"sort"
	"time"

	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

// SetTypingStatus records or clears userID's typing flag in the room, then
// broadcasts the full list of typing users. Repeating the same flag leaves
// the state unchanged but still broadcasts.
func (r *Registry) SetTypingStatus(roomID, userID string, isTyping bool) {
	rm := r.getRoom(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	if isTyping {
		rm.typing[userID] = r.now()
	} else {
		delete(rm.typing, userID)
	}
	failed := rm.deliverLocked(types.TypingStatusEvent{UsersTyping: rm.typingUsersLocked()})
	rm.mu.Unlock()

	r.prune(failed)
}

// GetTypingUsers returns the sorted ids of users currently typing in a room.
func (r *Registry) GetTypingUsers(roomID string) []string {
	rm := r.getRoom(roomID)
	if rm == nil {
		return []string{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.typingUsersLocked()
}

// ExpireTyping clears typing flags not refreshed within ttl and rebroadcasts
// the list in every room that changed. It returns the number of entries
// cleared.
func (r *Registry) ExpireTyping(ttl time.Duration) int {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	cutoff := r.now().Add(-ttl)
	cleared := 0
	for _, rm := range rooms {
		rm.mu.Lock()
		changed := false
		for userID, at := range rm.typing {
			if at.Before(cutoff) {
				delete(rm.typing, userID)
				changed = true
				cleared++
			}
		}
		var failed []interfaces.Connection
		if changed {
			failed = rm.deliverLocked(types.TypingStatusEvent{UsersTyping: rm.typingUsersLocked()})
		}
		rm.mu.Unlock()
		r.prune(failed)
	}
	return cleared
}

func (r *Registry) broadcastTyping(roomID string) {
	rm := r.getRoom(roomID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	failed := rm.deliverLocked(types.TypingStatusEvent{UsersTyping: rm.typingUsersLocked()})
	rm.mu.Unlock()
	r.prune(failed)
}

func (rm *room) typingUsersLocked() []string {
	users := make([]string, 0, len(rm.typing))
	for userID := range rm.typing {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}
