// Package chain defines what every ledger module shares: caller identity,
// logical time, the per-action call context, typed rejections and argument
// decoding.
//
// A module sees one action at a time through a *Ctx. It validates, then
// mutates its kv containers and emits events through the Ctx. Returning a
// *Rejection aborts the action; the engine rolls back the journal so the
// rejection has no side effects.
package chain
