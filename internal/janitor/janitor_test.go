package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingLimiter struct {
	calls   atomic.Int32
	removed int
}

func (c *countingLimiter) Cleanup() int {
	c.calls.Add(1)
	return c.removed
}

type countingPresence struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (c *countingPresence) ExpireTyping(ttl time.Duration) int {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 1
}

func TestJanitor_Sweep(t *testing.T) {
	limiter := &countingLimiter{removed: 3}
	presence := &countingPresence{}
	j := New(limiter, presence, time.Hour, 10*time.Second)

	windows, typing := j.Sweep()
	if windows != 3 || typing != 1 {
		t.Errorf("Expected (3, 1), got (%d, %d)", windows, typing)
	}
	if time.Duration(presence.ttl.Load()) != 10*time.Second {
		t.Errorf("Expected typing TTL 10s, got %v", time.Duration(presence.ttl.Load()))
	}
}

func TestJanitor_Lifecycle(t *testing.T) {
	limiter := &countingLimiter{}
	presence := &countingPresence{}
	j := New(limiter, presence, 5*time.Millisecond, time.Second)

	if err := j.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning before start, got %v", err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := j.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for limiter.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if limiter.calls.Load() < 2 || presence.calls.Load() < 2 {
		t.Errorf("Expected repeated sweeps, got limiter=%d presence=%d", limiter.calls.Load(), presence.calls.Load())
	}

	if err := j.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if j.IsRunning() {
		t.Error("Janitor should not be running after Stop")
	}

	calls := limiter.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if limiter.calls.Load() != calls {
		t.Error("Janitor swept after Stop")
	}

	// Restart is allowed after a clean stop.
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if err := j.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

func TestJanitor_StopsWithContext(t *testing.T) {
	j := New(&countingLimiter{}, &countingPresence{}, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for j.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if j.IsRunning() {
		t.Error("Janitor should stop when its context is cancelled")
	}
}
