package engine

import "sync/atomic"

// Clock is the log's sequence counter. Every action that enters the log,
// accepted or rejected, is stamped with the next seq.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though only the engine's single writer advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next seq is start+1.
// Used to resume a persisted log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Peek returns the seq the next call to Next will return.
func (c *Clock) Peek() int64 {
	return c.seq.Load() + 1
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
