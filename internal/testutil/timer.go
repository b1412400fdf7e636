package testutil

import (
	"sync"
	"time"
)

// InstantTimer replaces time.After in tests: every wait fires immediately
// and its duration is recorded.
// Safe for concurrent use.
type InstantTimer struct {
	mu    sync.Mutex
	waits []time.Duration
}

// After records d and returns a channel that is already ready.
func (t *InstantTimer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// Waits returns every recorded duration, in order.
func (t *InstantTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

// Total returns the sum of all recorded durations.
func (t *InstantTimer) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum time.Duration
	for _, d := range t.waits {
		sum += d
	}
	return sum
}

// ManualTimer replaces time.After with waits that fire only when the test
// advances the timer.
// Safe for concurrent use.
type ManualTimer struct {
	mu      sync.Mutex
	now     time.Duration
	pending []manualWait
	added   chan struct{}
}

type manualWait struct {
	at time.Duration
	ch chan time.Time
}

// NewManualTimer creates a timer at offset zero.
func NewManualTimer() *ManualTimer {
	return &ManualTimer{added: make(chan struct{}, 64)}
}

// After returns a channel that fires once the timer is advanced by d.
func (t *ManualTimer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan time.Time, 1)
	t.pending = append(t.pending, manualWait{at: t.now + d, ch: ch})
	select {
	case t.added <- struct{}{}:
	default:
	}
	return ch
}

// Advance moves the timer forward and fires every wait that is due.
func (t *ManualTimer) Advance(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now += d
	kept := t.pending[:0]
	for _, w := range t.pending {
		if w.at <= t.now {
			w.ch <- time.Time{}
			continue
		}
		kept = append(kept, w)
	}
	t.pending = kept
}

// Pending returns the number of waits not yet fired.
func (t *ManualTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// WaitForPending blocks until at least n waits are pending or timeout passes.
// Returns whether the condition was met.
func (t *ManualTimer) WaitForPending(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if t.Pending() >= n {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-t.added:
		case <-time.After(min(remaining, 10*time.Millisecond)):
		}
	}
}
