package moderation

import (
	"sync"
	"time"
)

// Window is the trailing interval over which messages are counted.
const Window = time.Minute

// RateLimiter is a per-identity sliding-window limiter. Accepted messages are
// remembered by timestamp; rejected attempts are not recorded.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewRateLimiter creates an empty limiter using the wall clock.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithClock(time.Now)
}

// NewRateLimiterWithClock creates a limiter that reads time from now.
func NewRateLimiterWithClock(now func() time.Time) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		now:     now,
	}
}

// CheckRateLimit purges timestamps older than the window, then accepts and
// records the attempt only if fewer than maxPerMinute remain. The
// purge-count-append sequence is atomic per identity.
func (rl *RateLimiter) CheckRateLimit(identity string, maxPerMinute int) bool {
	if maxPerMinute <= 0 {
		return false
	}

	rl.mu.Lock()
	w, ok := rl.windows[identity]
	if !ok {
		w = &rateWindow{}
		rl.windows[identity] = w
	}
	// Take the window lock before releasing the index so Cleanup cannot
	// evict this window between lookup and use.
	w.mu.Lock()
	rl.mu.Unlock()
	defer w.mu.Unlock()

	now := rl.now()
	w.purge(now.Add(-Window))

	if len(w.timestamps) >= maxPerMinute {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Count returns how many accepted attempts for identity are inside the window.
func (rl *RateLimiter) Count(identity string) int {
	rl.mu.Lock()
	w, ok := rl.windows[identity]
	if !ok {
		rl.mu.Unlock()
		return 0
	}
	w.mu.Lock()
	rl.mu.Unlock()
	defer w.mu.Unlock()

	w.purge(rl.now().Add(-Window))
	return len(w.timestamps)
}

// Cleanup removes identities with no timestamps left inside the window.
// Call periodically.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-Window)
	removed := 0
	for identity, w := range rl.windows {
		w.mu.Lock()
		w.purge(cutoff)
		empty := len(w.timestamps) == 0
		w.mu.Unlock()
		if empty {
			delete(rl.windows, identity)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked identities.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// purge keeps timestamps at or after cutoff. Timestamps are appended in
// order, so the stale ones form a prefix.
func (w *rateWindow) purge(cutoff time.Time) {
	i := 0
	for i < len(w.timestamps) && w.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}
