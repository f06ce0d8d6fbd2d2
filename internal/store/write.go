package store

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
)

// Record appends an action, its receipt and its events in one
// transaction. It implements engine.Recorder.
//
// Record is strict: writing a seq that already exists fails, because two
// different histories must never share a log. Receipt and action must
// agree on seq and action id.
func (s *Store) Record(ctx context.Context, action ir.Action, receipt ir.Receipt) error {
	if receipt.Seq != action.Seq || receipt.ActionID != action.ID {
		return fmt.Errorf("record: receipt %d/%s does not belong to action %d/%s",
			receipt.Seq, receipt.ActionID, action.Seq, action.ID)
	}

	argsJSON, err := marshalObject(action.Args)
	if err != nil {
		return fmt.Errorf("record seq %d: marshal args: %w", action.Seq, err)
	}
	resultJSON, err := marshalObject(receipt.Result)
	if err != nil {
		return fmt.Errorf("record seq %d: marshal result: %w", action.Seq, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record seq %d: begin tx: %w", action.Seq, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO actions
		(seq, id, batch, module, name, caller, time, args, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		action.Seq,
		action.ID,
		action.Batch,
		action.Module,
		action.Name,
		action.Caller,
		int64(action.Time),
		argsJSON,
		action.EngineVersion,
	); err != nil {
		return fmt.Errorf("record seq %d: insert action: %w", action.Seq, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO receipts
		(seq, id, action_id, outcome, result, state_root)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		receipt.Seq,
		receipt.ID,
		receipt.ActionID,
		receipt.Outcome,
		resultJSON,
		receipt.StateRoot,
	); err != nil {
		return fmt.Errorf("record seq %d: insert receipt: %w", action.Seq, err)
	}

	for i, ev := range receipt.Events {
		fieldsJSON, err := marshalObject(ev.Fields)
		if err != nil {
			return fmt.Errorf("record seq %d: marshal event %d: %w", action.Seq, i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (seq, idx, module, name, fields)
			VALUES (?, ?, ?, ?, ?)
		`, receipt.Seq, i, ev.Module, ev.Name, fieldsJSON); err != nil {
			return fmt.Errorf("record seq %d: insert event %d: %w", action.Seq, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record seq %d: commit: %w", action.Seq, err)
	}
	return nil
}
