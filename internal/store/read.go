package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
)

// ErrNotFound is returned when a requested seq is not in the log.
var ErrNotFound = errors.New("not found")

// Head describes the end of the log.
type Head struct {
	Seq       int64  // 0 for an empty log
	Time      uint64 // time of the last action
	StateRoot string // "" for an empty log
}

// ReadHead returns the last seq, its time and its state root.
func (s *Store) ReadHead(ctx context.Context) (Head, error) {
	var (
		h    Head
		time int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT a.seq, a.time, r.state_root
		FROM actions a
		JOIN receipts r ON r.seq = a.seq
		ORDER BY a.seq DESC
		LIMIT 1
	`).Scan(&h.Seq, &time, &h.StateRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("read head: %w", err)
	}
	h.Time = uint64(time)
	return h, nil
}

// ReadEntry returns the log entry at seq, or ErrNotFound.
func (s *Store) ReadEntry(ctx context.Context, seq int64) (ir.LogEntry, error) {
	entries, err := s.readEntries(ctx, `WHERE a.seq = ?`, seq)
	if err != nil {
		return ir.LogEntry{}, err
	}
	if len(entries) == 0 {
		return ir.LogEntry{}, fmt.Errorf("seq %d: %w", seq, ErrNotFound)
	}
	return entries[0], nil
}

// ReadBatch returns every entry submitted under a batch token, in seq
// order. Returns an empty slice (not nil) if the batch is unknown.
func (s *Store) ReadBatch(ctx context.Context, batch string) ([]ir.LogEntry, error) {
	return s.readEntries(ctx, `WHERE a.batch = ?`, batch)
}

// ReadLog returns the whole log in seq order.
func (s *Store) ReadLog(ctx context.Context) ([]ir.LogEntry, error) {
	return s.readEntries(ctx, ``)
}

// ReadRange returns entries with from <= seq <= to, in seq order.
func (s *Store) ReadRange(ctx context.Context, from, to int64) ([]ir.LogEntry, error) {
	return s.readEntries(ctx, `WHERE a.seq BETWEEN ? AND ?`, from, to)
}

// EventRecord is an event together with the seq that emitted it.
type EventRecord struct {
	Seq   int64
	Index int
	Event ir.Event
}

// ReadEvents returns events with the given module and name in log order.
// An empty name matches every event of the module.
func (s *Store) ReadEvents(ctx context.Context, module, name string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, idx, module, name, fields
		FROM events
		WHERE module = ? AND (? = '' OR name = ?)
		ORDER BY seq ASC, idx ASC
	`, module, name, name)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []EventRecord{}
	for rows.Next() {
		var (
			rec    EventRecord
			fields string
		)
		if err := rows.Scan(&rec.Seq, &rec.Index, &rec.Event.Module, &rec.Event.Name, &fields); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rec.Event.Fields, err = unmarshalObject(fields); err != nil {
			return nil, fmt.Errorf("event %d/%d: %w", rec.Seq, rec.Index, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// readEntries loads actions and receipts matching where, then attaches
// their events. where is a fixed SQL fragment; values go through args.
func (s *Store) readEntries(ctx context.Context, where string, args ...any) ([]ir.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.seq, a.id, a.batch, a.module, a.name, a.caller, a.time, a.args, a.engine_version,
		       r.id, r.outcome, r.result, r.state_root
		FROM actions a
		JOIN receipts r ON r.seq = a.seq
		`+where+`
		ORDER BY a.seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}

	entries := []ir.LogEntry{}
	index := make(map[int64]int)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[entry.Action.Seq] = len(entries)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return entries, nil
	}
	if err := s.attachEvents(ctx, entries, index); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) attachEvents(ctx context.Context, entries []ir.LogEntry, index map[int64]int) error {
	first, last := entries[0].Action.Seq, entries[len(entries)-1].Action.Seq
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, module, name, fields
		FROM events
		WHERE seq BETWEEN ? AND ?
		ORDER BY seq ASC, idx ASC
	`, first, last)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int64
			ev     ir.Event
			fields string
		)
		if err := rows.Scan(&seq, &ev.Module, &ev.Name, &fields); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		i, ok := index[seq]
		if !ok {
			continue // seq in range but filtered out
		}
		if ev.Fields, err = unmarshalObject(fields); err != nil {
			return fmt.Errorf("seq %d event: %w", seq, err)
		}
		entries[i].Receipt.Events = append(entries[i].Receipt.Events, ev)
	}
	return rows.Err()
}

func scanEntry(rows *sql.Rows) (ir.LogEntry, error) {
	var (
		a          ir.Action
		r          ir.Receipt
		time       int64
		argsJSON   string
		resultJSON string
	)
	if err := rows.Scan(
		&a.Seq, &a.ID, &a.Batch, &a.Module, &a.Name, &a.Caller, &time, &argsJSON, &a.EngineVersion,
		&r.ID, &r.Outcome, &resultJSON, &r.StateRoot,
	); err != nil {
		return ir.LogEntry{}, fmt.Errorf("scan log entry: %w", err)
	}
	a.Time = uint64(time)

	var err error
	if a.Args, err = unmarshalObject(argsJSON); err != nil {
		return ir.LogEntry{}, fmt.Errorf("seq %d args: %w", a.Seq, err)
	}
	if r.Result, err = unmarshalObject(resultJSON); err != nil {
		return ir.LogEntry{}, fmt.Errorf("seq %d result: %w", a.Seq, err)
	}
	r.Seq = a.Seq
	r.ActionID = a.ID
	return ir.LogEntry{Action: a, Receipt: r}, nil
}
