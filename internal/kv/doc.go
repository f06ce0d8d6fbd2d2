// Package kv provides the keyed record store used by every ledger module:
// single-key maps, composite-key sets and monotonic id counters.
//
// Every mutation records an undo entry in a shared Journal. The engine opens
// one journal transaction per action and either commits it or rolls it back,
// so an action's store writes, balance changes and counter bumps land
// together or not at all.
//
// Digested containers also keep a running Digest of their entries, so the
// engine can commit to the whole state without walking it.
//
// Values are stored by copy. Callers must store value types (structs of
// scalars and strings), never pointers or slices they later mutate, or
// rollback cannot restore them.
package kv
