package kv

import "errors"

var (
	// ErrTxActive is returned by Begin when a transaction is already open.
	ErrTxActive = errors.New("kv: transaction already active")

	// ErrNoTx is returned by Commit and Rollback without an open transaction.
	ErrNoTx = errors.New("kv: no active transaction")
)

// Journal tracks undo entries for the containers attached to it.
// Mutations made outside a transaction are permanent (genesis setup).
//
// Journal is not safe for concurrent use; the engine is its single writer.
type Journal struct {
	undo   []func()
	active bool
}

// NewJournal returns an idle journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Begin opens a transaction.
func (j *Journal) Begin() error {
	if j.active {
		return ErrTxActive
	}
	j.active = true
	j.undo = j.undo[:0]
	return nil
}

// Commit keeps every mutation since Begin.
func (j *Journal) Commit() error {
	if !j.active {
		return ErrNoTx
	}
	j.active = false
	j.undo = j.undo[:0]
	return nil
}

// Rollback reverts every mutation since Begin, newest first.
func (j *Journal) Rollback() error {
	if !j.active {
		return ErrNoTx
	}
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.active = false
	j.undo = j.undo[:0]
	return nil
}

// Active reports whether a transaction is open.
func (j *Journal) Active() bool {
	return j.active
}

// Pending returns the number of undo entries in the open transaction.
func (j *Journal) Pending() int {
	return len(j.undo)
}

func (j *Journal) record(fn func()) {
	if j.active {
		j.undo = append(j.undo, fn)
	}
}
