package harness

import (
	"github.com/roach88/ledgerd/internal/ir"
)

// TraceEvent is one applied step as seen by assertions and golden files.
// Hashes and state roots are left out so golden files survive unrelated
// changes to id derivation.
type TraceEvent struct {
	Seq     int64      `json:"seq"`
	Batch   string     `json:"batch"`
	Action  string     `json:"action"` // module.name
	Caller  string     `json:"caller"`
	Time    uint64     `json:"time"`
	Args    ir.Object  `json:"args"`
	Outcome string     `json:"outcome"`
	Result  ir.Object  `json:"result"`
	Events  []ir.Event `json:"events"`
}

// toObject renders the event for canonical serialization.
func (e TraceEvent) toObject() ir.Object {
	return ir.Object{
		"seq":     ir.Int(e.Seq),
		"batch":   ir.String(e.Batch),
		"action":  ir.String(e.Action),
		"caller":  ir.String(e.Caller),
		"time":    ir.Uint(e.Time),
		"args":    e.Args,
		"outcome": ir.String(e.Outcome),
		"result":  e.Result,
		"events":  ir.EventsToArray(e.Events),
	}
}

// traceEvent builds a TraceEvent from a committed log position.
func traceEvent(action ir.Action, receipt ir.Receipt) TraceEvent {
	return TraceEvent{
		Seq:     action.Seq,
		Batch:   action.Batch,
		Action:  action.Module + "." + action.Name,
		Caller:  action.Caller,
		Time:    action.Time,
		Args:    action.Args,
		Outcome: receipt.Outcome,
		Result:  receipt.Result,
		Events:  receipt.Events,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held and the
	// log replayed to the same state root.
	Pass bool `json:"pass"`

	// Trace contains every applied step in log order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// StateRoot is the root after the last step.
	StateRoot string `json:"state_root"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
