package kv

import (
	"errors"
	"math"
)

// ErrExhausted is returned when a counter has handed out its last id.
var ErrExhausted = errors.New("kv: id space exhausted")

// Counter allocates monotonically increasing ids. A rolled-back action
// restores the counter, so committed ids stay dense.
type Counter struct {
	j         *Journal
	next      uint64
	max       uint64
	exhausted bool
}

// NewCounter creates a counter whose first id is base and whose largest
// id is max.
func NewCounter(j *Journal, base, max uint64) *Counter {
	return &Counter{j: j, next: base, max: max, exhausted: base > max}
}

// Allocate returns the current value and advances the counter.
func (c *Counter) Allocate() (uint64, error) {
	if c.exhausted {
		return 0, ErrExhausted
	}
	id := c.next
	c.j.record(func() {
		c.next = id
		c.exhausted = false
	})
	if id == c.max {
		c.exhausted = true
	} else {
		c.next++
	}
	return id, nil
}

// Peek returns the id the next Allocate would hand out. An exhausted
// counter reports max+1, or max itself when max+1 does not fit; use
// Exhausted to tell the two apart.
func (c *Counter) Peek() uint64 {
	if c.exhausted {
		if c.max == math.MaxUint64 {
			return c.max
		}
		return c.max + 1
	}
	return c.next
}

// Exhausted reports whether every id up to max has been handed out.
func (c *Counter) Exhausted() bool {
	return c.exhausted
}
