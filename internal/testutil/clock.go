package testutil

import (
	"sync"

	"github.com/roach88/ledgerd/internal/chain"
)

// LogicalClock is a settable stand-in for the host's time oracle.
//
// The engine never reads a clock itself; every action carries the time the
// host assigned. LogicalClock lets tests and scenarios hand out those times
// deterministically, including jumps past poll deadlines.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type LogicalClock struct {
	mu  sync.Mutex
	now chain.Time
}

// NewLogicalClock creates a clock reading start.
func NewLogicalClock(start chain.Time) *LogicalClock {
	return &LogicalClock{now: start}
}

// Now returns the current logical time.
func (c *LogicalClock) Now() chain.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed so tests can
// provoke the engine's time-regression check.
func (c *LogicalClock) Set(t chain.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (c *LogicalClock) Advance(d chain.Time) chain.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Reset returns the clock to zero.
func (c *LogicalClock) Reset() {
	c.Set(0)
}
