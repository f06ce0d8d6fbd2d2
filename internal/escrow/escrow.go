// Package escrow is the reserve/mint balance ledger behind post and group
// deposits and social rewards.
package escrow

import (
	"cmp"
	"math"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Name is the escrow module's routing key.
const Name = "escrow"

// ErrInsufficientBalance matches any reservation that failed for lack of
// free balance.
var ErrInsufficientBalance = &chain.Rejection{Code: chain.CodeInsufficientBalance}

// Balance is an account's free and reserved funds.
type Balance struct {
	Free     uint64
	Reserved uint64
}

// Ledger tracks balances. Reserved funds have no release path.
type Ledger struct {
	balances *kv.Map[chain.AccountID, Balance]
}

// New creates an empty ledger attached to j.
func New(j *kv.Journal) *Ledger {
	return &Ledger{
		balances: kv.NewMap[chain.AccountID, Balance](j, cmp.Compare[chain.AccountID]).
			Digested(func(account chain.AccountID, b Balance) ir.Value {
				return ir.Array{chain.Account(account), balanceValue(b)}
			}),
	}
}

// Name implements chain.Module.
func (l *Ledger) Name() string { return Name }

// Balance returns the account's balance; unknown accounts hold nothing.
func (l *Ledger) Balance(account chain.AccountID) Balance {
	b, _ := l.balances.Get(account)
	return b
}

// Reserve moves amount from free to reserved. It fails without side effects
// when the free balance is short.
func (l *Ledger) Reserve(account chain.AccountID, amount uint64) error {
	b := l.Balance(account)
	if b.Free < amount {
		return chain.Reject(Name, chain.CodeInsufficientBalance,
			"%s has %d free, needs %d", account, b.Free, amount)
	}
	b.Free -= amount
	b.Reserved = saturatingAdd(b.Reserved, amount)
	l.balances.Insert(account, b)
	return nil
}

// MintAndCredit creates amount and credits it to the account's free
// balance, saturating at the maximum. It cannot fail.
func (l *Ledger) MintAndCredit(account chain.AccountID, amount uint64) {
	b := l.Balance(account)
	b.Free = saturatingAdd(b.Free, amount)
	l.balances.Insert(account, b)
}

// Apply implements chain.Module. The ledger accepts no direct actions;
// balances move only as a side effect of other modules.
func (l *Ledger) Apply(_ *chain.Ctx, action string, _ ir.Object) (ir.Object, error) {
	return nil, &chain.UnknownError{Module: Name, Kind: "action", Name: action}
}

type balanceArgs struct {
	Account chain.AccountID `mapstructure:"account"`
}

// Query implements chain.Module.
func (l *Ledger) Query(_ chain.Time, query string, args ir.Object) (ir.Value, error) {
	switch query {
	case "balance":
		var a balanceArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		return balanceValue(l.Balance(a.Account)), nil
	default:
		return nil, &chain.UnknownError{Module: Name, Kind: "query", Name: query}
	}
}

// Snapshot implements chain.Module.
func (l *Ledger) Snapshot() ir.Object {
	balances := ir.Object{}
	for _, account := range l.balances.Keys() {
		b, _ := l.balances.Get(account)
		balances[string(account)] = balanceValue(b)
	}
	return ir.Object{"balances": balances}
}

// Digest implements chain.Module.
func (l *Ledger) Digest() ir.Object {
	return ir.Obj(ir.O("balances", kv.Summary(l.balances)))
}

func balanceValue(b Balance) ir.Object {
	return ir.Obj(
		ir.O("free", ir.Uint(b.Free)),
		ir.O("reserved", ir.Uint(b.Reserved)),
	)
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
