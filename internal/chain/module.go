package chain

import (
	"github.com/roach88/ledgerd/internal/ir"
)

// Module is one ledger application domain.
type Module interface {
	// Name is the module's routing key, e.g. "poll".
	Name() string

	// Apply handles one action. A returned *Rejection aborts the action;
	// any other error is an infrastructure fault. Handlers validate before
	// they mutate, but the engine rolls back regardless.
	Apply(ctx *Ctx, action string, args ir.Object) (ir.Object, error)

	// Query reads state without mutating it. now is the logical time used
	// for time-dependent views.
	Query(now Time, query string, args ir.Object) (ir.Value, error)

	// Snapshot renders the module's complete state deterministically.
	Snapshot() ir.Object

	// Digest commits to the same state as Snapshot without walking it:
	// scalars plus the running digest of every container. Two modules
	// with equal snapshots have equal digests.
	Digest() ir.Object
}

// UnknownError reports an unrecognised action or query name. It is an
// infrastructure error, not a rejection: the action never enters the log.
type UnknownError struct {
	Module string
	Kind   string // "action" or "query"
	Name   string
}

func (e *UnknownError) Error() string {
	return "unknown " + e.Kind + " " + e.Module + "." + e.Name
}
