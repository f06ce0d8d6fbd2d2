package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainAction    = "ledgerd/action/v1"
	DomainReceipt   = "ledgerd/receipt/v1"
	DomainStateRoot = "ledgerd/state/v2"
	DomainGenesis   = "ledgerd/genesis/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The 0x00 separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionID computes the content-addressed id of an action.
// The id covers everything that determines the action's effect, so two
// replicas agree on it iff they agree on the input.
func ActionID(a Action) (string, error) {
	args := a.Args
	if args == nil {
		args = Object{}
	}
	obj := Object{
		"batch":  String(a.Batch),
		"module": String(a.Module),
		"name":   String(a.Name),
		"caller": String(a.Caller),
		"time":   Uint(a.Time),
		"args":   args,
		"seq":    Int(a.Seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ActionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// ReceiptID computes the content-addressed id of a receipt. It binds the
// outcome, emitted events and resulting state root to the action.
func ReceiptID(r Receipt) (string, error) {
	result := r.Result
	if result == nil {
		result = Object{}
	}
	obj := Object{
		"action_id":  String(r.ActionID),
		"seq":        Int(r.Seq),
		"outcome":    String(r.Outcome),
		"result":     result,
		"events":     EventsToArray(r.Events),
		"state_root": String(r.StateRoot),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReceiptID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReceipt, canonical), nil
}

// StateRoot hashes a state commitment: per-module scalars and container
// digests, keyed by module name.
func StateRoot(commitment Object) (string, error) {
	canonical, err := MarshalCanonical(commitment)
	if err != nil {
		return "", fmt.Errorf("StateRoot: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStateRoot, canonical), nil
}

// GenesisHash hashes a ledger's initial configuration.
func GenesisHash(genesis Object) (string, error) {
	canonical, err := MarshalCanonical(genesis)
	if err != nil {
		return "", fmt.Errorf("GenesisHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGenesis, canonical), nil
}

// MustActionID is like ActionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustActionID(a Action) string {
	id, err := ActionID(a)
	if err != nil {
		panic(err)
	}
	return id
}
