// Package engine runs the ledger: it owns module state, applies actions
// one at a time as all-or-nothing units, and stamps each with a
// content-addressed receipt.
//
// # Log model
//
// Every action that reaches a module enters the log and consumes the next
// seq, whether it is accepted or rejected. A rejection is a normal outcome:
// its receipt carries the rejection code, no events and the unchanged state
// root. Actions that cannot be routed (unknown module or action) or that
// arrive with a time earlier than the last logged action never enter the
// log; Apply returns an *Error for them.
//
// # Determinism
//
// Module state lives in kv containers that share one journal. Apply opens
// a transaction, lets the module validate and mutate, then either commits
// or rolls back. Every container keeps a running digest of its entries, so
// after each accepted action the engine hashes only the per-module digests
// into a state root. Two engines built
// from the same Genesis and fed the same log produce identical receipts;
// Replay checks exactly that.
//
// # Concurrency
//
// Apply is synchronous and single-goroutine. Hosts with concurrent
// submitters call Submit and run one Run loop, which drains a FIFO queue
// and applies each request in arrival order.
package engine
