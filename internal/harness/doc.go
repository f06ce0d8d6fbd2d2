// Package harness runs YAML scenarios against the real ledger engine.
//
// A scenario names a genesis, a list of steps and a list of assertions.
// Each step is submitted to a fresh engine recording into an in-memory
// store; expect clauses are checked against the receipts the engine
// actually produced. After the last step the stored log is replayed on a
// second engine and must reach the same state root.
//
// Traces can be pinned with golden files (testdata/golden/<name>.golden),
// holding the canonical JSON of every step without hashes.
package harness
