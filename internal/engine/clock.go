package engine

import "sync/atomic"

// Clock is the roster revision counter.
//
// Every apply step advances the clock exactly once, whether or not it
// changed the roster, so observers can tell "something was processed" from
// "nothing happened".
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the apply path calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific revision.
// Used by replay to continue numbering from a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new revision.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current revision without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
