package engine

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
)

// Replay rebuilds an engine from genesis by re-applying a logged action
// sequence, verifying determinism as it goes.
//
// Every action is re-applied with its logged batch, caller and time. The
// recomputed action id and receipt id must match the log byte-for-byte;
// the first divergence returns an ErrCodeReplayMismatch error naming the
// seq. Receipt ids cover events, outcome and state root, so matching ids
// imply identical state at every step.
//
// Recorders and observers passed in opts are not invoked for replayed
// actions; they are attached once replay completes, so the returned engine
// can resume appending to the same log.
func Replay(ctx context.Context, g Genesis, log []ir.LogEntry, opts ...Option) (*Engine, error) {
	e, err := New(g, opts...)
	if err != nil {
		return nil, err
	}

	recorders, observers := e.recorders, e.observers
	e.recorders, e.observers = nil, nil
	defer func() {
		e.recorders, e.observers = recorders, observers
	}()

	for i, entry := range log {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := int64(i + 1)
		if entry.Action.Seq != want {
			return nil, mismatch(entry, fmt.Sprintf("log gap: expected seq %d, found %d", want, entry.Action.Seq))
		}

		receipt, err := e.Apply(ctx, Request{
			Batch:  entry.Action.Batch,
			Module: entry.Action.Module,
			Action: entry.Action.Name,
			Caller: chain.AccountID(entry.Action.Caller),
			Time:   chain.Time(entry.Action.Time),
			Args:   entry.Action.Args,
		})
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", want, err)
		}
		if receipt.ActionID != entry.Action.ID {
			return nil, mismatch(entry, fmt.Sprintf("action id %s, logged %s", receipt.ActionID, entry.Action.ID))
		}
		if receipt.ID != entry.Receipt.ID {
			return nil, mismatch(entry, fmt.Sprintf("receipt id %s, logged %s (outcome %s, logged %s)",
				receipt.ID, entry.Receipt.ID, receipt.Outcome, entry.Receipt.Outcome))
		}
	}

	return e, nil
}

func mismatch(entry ir.LogEntry, msg string) *Error {
	return &Error{
		Code:    ErrCodeReplayMismatch,
		Message: fmt.Sprintf("seq %d: %s", entry.Action.Seq, msg),
		Module:  entry.Action.Module,
		Action:  entry.Action.Name,
	}
}
