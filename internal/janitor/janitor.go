package janitor

import (
	"context"
	"log"
	"sync"
	"time"
)

// RateWindows is the slice of moderation.RateLimiter the janitor sweeps.
type RateWindows interface {
	Cleanup() int
}

// TypingState is the slice of websocket.Registry the janitor sweeps.
type TypingState interface {
	ExpireTyping(ttl time.Duration) int
}

// Janitor periodically drops idle rate-limit windows and stale typing
// indicators.
type Janitor struct {
	limiter   RateWindows
	presence  TypingState
	interval  time.Duration
	typingTTL time.Duration

	running  bool
	shutdown chan struct{}
	done     chan struct{}
	mu       sync.Mutex
}

// New creates a stopped janitor.
func New(limiter RateWindows, presence TypingState, interval, typingTTL time.Duration) *Janitor {
	return &Janitor{
		limiter:   limiter,
		presence:  presence,
		interval:  interval,
		typingTTL: typingTTL,
	}
}

// Start launches the sweep loop. It stops when ctx ends or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return ErrAlreadyRunning
	}
	j.running = true
	j.shutdown = make(chan struct{})
	j.done = make(chan struct{})

	log.Printf("Starting janitor: interval=%s typing_ttl=%s", j.interval, j.typingTTL)
	go j.run(ctx, j.shutdown, j.done)
	return nil
}

// Stop ends the sweep loop and waits for it to exit.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return ErrNotRunning
	}
	j.running = false
	close(j.shutdown)
	done := j.done
	j.mu.Unlock()

	<-done
	log.Println("Janitor stopped")
	return nil
}

// IsRunning reports whether the sweep loop is active.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Sweep runs one cleanup pass and returns the number of rate windows and
// typing entries removed.
func (j *Janitor) Sweep() (windows, typing int) {
	windows = j.limiter.Cleanup()
	typing = j.presence.ExpireTyping(j.typingTTL)
	if windows > 0 || typing > 0 {
		log.Printf("Janitor sweep: rate_windows=%d typing=%d", windows, typing)
	}
	return windows, typing
}

func (j *Janitor) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-shutdown:
			return
		case <-ctx.Done():
			j.mu.Lock()
			j.running = false
			j.mu.Unlock()
			return
		}
	}
}
