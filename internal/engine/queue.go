package engine

import (
	"sync"

	"github.com/roach88/ledgerd/internal/ir"
)

// Result is the outcome of a submitted request.
type Result struct {
	Receipt ir.Receipt
	Err     error
}

// submission pairs a request with the channel its result is delivered on.
type submission struct {
	req   Request
	reply chan Result
}

// submitQueue is a thread-safe FIFO queue of submissions.
//
// Submitters on any goroutine enqueue; the engine's Run loop dequeues. The
// queue uses a channel for signaling to enable context-aware waiting in the
// Run loop.
type submitQueue struct {
	mu     sync.Mutex
	items  []submission
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newSubmitQueue() *submitQueue {
	return &submitQueue{
		items:  make([]submission, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Returns false if the queue is closed.
func (q *submitQueue) Enqueue(s submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, s)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *submitQueue) TryDequeue() (submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return submission{}, false
	}

	s := q.items[0]
	q.items[0] = submission{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return s, true
}

// Wait returns a channel that signals when submissions may be available.
func (q *submitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *submitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more submissions will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *submitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drain removes every pending submission.
func (q *submitQueue) Drain() []submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}
