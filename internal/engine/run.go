package engine

import (
	"context"
	"errors"
)

// ErrStopped is delivered to submissions the Run loop will never process.
var ErrStopped = errors.New("engine stopped")

// Submit queues a request for the Run loop and returns the channel its
// result will be delivered on. The channel is buffered; the loop never
// blocks on a slow submitter.
//
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(req Request) <-chan Result {
	reply := make(chan Result, 1)
	if !e.queue.Enqueue(submission{req: req, reply: reply}) {
		reply <- Result{Err: ErrStopped}
	}
	return reply
}

// Run starts the single-writer loop. Blocks until the context is cancelled
// or Stop is called. Submissions still queued when the loop exits receive
// ErrStopped.
//
// CRITICAL: Must be called from exactly ONE goroutine, and no other
// goroutine may call Apply while it runs.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "seq", e.clock.Current(), "state_root", e.root)

	for {
		if s, ok := e.queue.TryDequeue(); ok {
			receipt, err := e.Apply(ctx, s.req)
			if err != nil {
				e.logger.Error("action not applied",
					"module", s.req.Module,
					"action", s.req.Action,
					"error", err,
				)
			}
			s.reply <- Result{Receipt: receipt, Err: err}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled", "seq", e.clock.Current())
			e.queue.Close()
			e.failPending()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed", "seq", e.clock.Current())
				return nil
			}
		}
	}
}

// Stop closes the queue. Run processes what is already queued, then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) failPending() {
	for _, s := range e.queue.Drain() {
		s.reply <- Result{Err: ErrStopped}
	}
}
