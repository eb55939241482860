package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomwire/pkg/interfaces"
)

// Manager implements interfaces.SessionAccounting. It keeps one start time per
// open connection and, when the connection ends, adds the elapsed whole
// seconds to the user's durable total.
type Manager struct {
	recorder interfaces.ActivityRecorder
	sessions map[string]time.Time // connID -> start
	mu       sync.Mutex
	now      func() time.Time
}

// NewManager creates a session accounting manager over recorder.
func NewManager(recorder interfaces.ActivityRecorder) *Manager {
	return NewManagerWithClock(recorder, time.Now)
}

// NewManagerWithClock is NewManager with an injectable clock.
func NewManagerWithClock(recorder interfaces.ActivityRecorder, now func() time.Time) *Manager {
	return &Manager{
		recorder: recorder,
		sessions: make(map[string]time.Time),
		now:      now,
	}
}

// Start records the start of connID's session. Starting an already open
// session resets its start time.
func (m *Manager) Start(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[connID] = m.now()
}

// Finish closes connID's session and credits its duration to userID. Sessions
// shorter than one second are not recorded. Each session is credited at most
// once; finishing an unknown session returns ErrSessionNotFound.
func (m *Manager) Finish(ctx context.Context, connID, userID string) (time.Duration, error) {
	m.mu.Lock()
	start, ok := m.sessions[connID]
	if ok {
		delete(m.sessions, connID)
	}
	m.mu.Unlock()

	if !ok {
		return 0, ErrSessionNotFound
	}

	elapsed := m.now().Sub(start)
	seconds := int64(elapsed / time.Second)
	if seconds <= 0 {
		return elapsed, nil
	}

	if err := m.recorder.AddActiveTime(ctx, userID, seconds); err != nil {
		return elapsed, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	return elapsed, nil
}

// ActiveSessions returns the number of open sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

