package chain

import (
	"github.com/roach88/ledgerd/internal/ir"
)

// AccountID is an opaque, comparable account identity supplied by the host.
type AccountID string

// Time is logical time: block height or milliseconds, non-decreasing
// across the log.
type Time uint64

// Call carries the host-supplied facts about one action.
type Call struct {
	Caller AccountID
	Time   Time
}

// Ctx is the context a module handler runs in. It collects events in
// emission order.
type Ctx struct {
	Call
	module string
	events []ir.Event
}

// NewCtx returns a context for one action handled by module.
func NewCtx(module string, call Call) *Ctx {
	return &Ctx{Call: call, module: module}
}

// Emit appends an event for the handling module.
func (c *Ctx) Emit(name string, fields ...ir.Pair) {
	c.events = append(c.events, ir.Event{
		Module: c.module,
		Name:   name,
		Fields: ir.Obj(fields...),
	})
}

// Events returns the events emitted so far.
func (c *Ctx) Events() []ir.Event {
	return c.events
}

// Module returns the name of the module handling the action.
func (c *Ctx) Module() string {
	return c.module
}

// Account renders an account as a Value.
func Account(a AccountID) ir.Value {
	return ir.String(a)
}

// OptAccount renders an optional account as a Value.
func OptAccount(a *AccountID) ir.Value {
	if a == nil {
		return ir.Null{}
	}
	return ir.String(*a)
}
