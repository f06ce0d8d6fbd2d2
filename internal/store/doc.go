// Package store provides SQLite-backed durable storage for the ledger's
// action log.
//
// The log is append-only and holds, per seq:
//   - the action (batch, module, name, caller, time, canonical args)
//   - its receipt (outcome, result, state root)
//   - the events it emitted, in emission order
//
// A log is pinned to the genesis it was produced under; opening it with a
// different genesis fails before any action is replayed.
//
// # Drivers
//
// Two database/sql drivers are registered: "sqlite3" (mattn/go-sqlite3,
// cgo) and "sqlite" (modernc.org/sqlite, pure Go). Both read and write the
// same file format.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All queries order by seq. Args, results and event fields are stored as
// RFC 8785 canonical JSON, so the ids recomputed on replay match byte for
// byte.
package store
