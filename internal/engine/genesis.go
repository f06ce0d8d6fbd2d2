package engine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/community"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/social"
)

// Genesis is the initial configuration of a ledger. Two engines built from
// the same Genesis and fed the same actions reach the same state root.
type Genesis struct {
	// Owner may end any poll and always moderates.
	Owner chain.AccountID

	// TimeUnitsPerHour converts poll durations into logical time.
	TimeUnitsPerHour uint64

	Social    social.Params
	Community community.Params

	// Endowments credits free balance before the first action.
	Endowments map[chain.AccountID]uint64
}

// DefaultGenesis returns stock parameters for owner with no endowments.
func DefaultGenesis(owner chain.AccountID) Genesis {
	return Genesis{
		Owner:            owner,
		TimeUnitsPerHour: 3_600_000,
		Social:           social.DefaultParams(),
		Community:        community.DefaultParams(),
	}
}

// Moderators returns the configured moderators plus the owner, sorted and
// deduplicated.
func (g Genesis) Moderators() []chain.AccountID {
	mods := slices.Clone(g.Community.Moderators)
	if g.Owner != "" {
		mods = append(mods, g.Owner)
	}
	slices.SortFunc(mods, cmp.Compare[chain.AccountID])
	return slices.Compact(mods)
}

// ToObject renders the genesis canonically.
func (g Genesis) ToObject() ir.Object {
	endow := make(ir.Object, len(g.Endowments))
	for acct, amount := range g.Endowments {
		endow[string(acct)] = ir.Uint(amount)
	}
	mods := make(ir.Array, 0, len(g.Community.Moderators))
	for _, m := range g.Moderators() {
		mods = append(mods, chain.Account(m))
	}
	return ir.Obj(
		ir.O("owner", chain.Account(g.Owner)),
		ir.O("time_units_per_hour", ir.Uint(g.TimeUnitsPerHour)),
		ir.O("social", ir.Obj(
			ir.O("post_deposit", ir.Uint(g.Social.PostDeposit)),
			ir.O("post_reward", ir.Uint(g.Social.PostReward)),
			ir.O("like_reward", ir.Uint(g.Social.LikeReward)),
			ir.O("max_post_length", ir.Uint(g.Social.MaxPostLength)),
		)),
		ir.O("community", ir.Obj(
			ir.O("group_deposit", ir.Uint(g.Community.GroupDeposit)),
			ir.O("max_group_members", ir.Uint(g.Community.MaxGroupMembers)),
			ir.O("max_group_name_length", ir.Uint(g.Community.MaxGroupNameLength)),
			ir.O("max_group_description_length", ir.Uint(g.Community.MaxGroupDescriptionLength)),
			ir.O("max_message_length", ir.Uint(g.Community.MaxMessageLength)),
			ir.O("moderators", mods),
		)),
		ir.O("endowments", endow),
	)
}

// Hash returns the content address of the genesis. The store pins a log
// to the genesis it was produced under.
func (g Genesis) Hash() (string, error) {
	h, err := ir.GenesisHash(g.ToObject())
	if err != nil {
		return "", fmt.Errorf("hash genesis: %w", err)
	}
	return h, nil
}

// Validate rejects configurations no ledger can run under.
func (g Genesis) Validate() error {
	if g.Owner == "" {
		return fmt.Errorf("genesis: owner is required")
	}
	if g.TimeUnitsPerHour == 0 {
		return fmt.Errorf("genesis: time_units_per_hour must be positive")
	}
	if g.Community.MaxGroupMembers == 0 {
		return fmt.Errorf("genesis: max_group_members must be positive")
	}
	return nil
}
