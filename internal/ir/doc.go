// Package ir provides the canonical value and record types shared by every
// ledgerd package.
//
// ir imports nothing internal. Everything that must hash identically on
// every replica goes through this package:
//   - NO float types anywhere; integers are int64 or uint64
//   - Objects serialise with RFC 8785 key order via MarshalCanonical
//   - Action and receipt ids, and state roots, are SHA-256 over canonical JSON
//     with a domain prefix. The state root covers container digests, not
//     the full state
//   - Logical time comes from the host; wall clocks are never read
package ir
