// Package community implements the extended social module: groups with
// deposits, private messages, moderation reports, reputation and blocking.
package community

import (
	"cmp"
	"math"
	"slices"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Name is the community module's routing key.
const Name = "community"

// Default parameters.
const (
	DefaultGroupDeposit              = 100
	DefaultMaxGroupMembers           = 1000
	DefaultMaxGroupNameLength        = 64
	DefaultMaxGroupDescriptionLength = 256
	DefaultMaxMessageLength          = 512

	// DefaultReputation is the score of an account never rated.
	DefaultReputation = 100
)

// Sentinel rejections for errors.Is.
var (
	ErrGroupNotFound           = chain.Sentinel(Name, chain.CodeGroupNotFound)
	ErrGroupNameTooLong        = chain.Sentinel(Name, chain.CodeGroupNameTooLong)
	ErrGroupDescriptionTooLong = chain.Sentinel(Name, chain.CodeGroupDescriptionTooLong)
	ErrGroupFull               = chain.Sentinel(Name, chain.CodeGroupFull)
	ErrNotGroupMember          = chain.Sentinel(Name, chain.CodeNotGroupMember)
	ErrNotGroupAdmin           = chain.Sentinel(Name, chain.CodeNotGroupAdmin)
	ErrAlreadyGroupMember      = chain.Sentinel(Name, chain.CodeAlreadyGroupMember)
	ErrMessageNotFound         = chain.Sentinel(Name, chain.CodeMessageNotFound)
	ErrMessageTooLong          = chain.Sentinel(Name, chain.CodeMessageTooLong)
	ErrCannotMessageSelf       = chain.Sentinel(Name, chain.CodeCannotMessageSelf)
	ErrUserBlocked             = chain.Sentinel(Name, chain.CodeUserBlocked)
	ErrReportNotFound          = chain.Sentinel(Name, chain.CodeReportNotFound)
	ErrCannotBlockSelf         = chain.Sentinel(Name, chain.CodeCannotBlockSelf)
	ErrAlreadyBlocked          = chain.Sentinel(Name, chain.CodeAlreadyBlocked)
	ErrNotBlocked              = chain.Sentinel(Name, chain.CodeNotBlocked)
	ErrUnauthorized            = chain.Sentinel(Name, chain.CodeUnauthorized)
)

// Ledger is the slice of the escrow ledger the module needs.
type Ledger interface {
	Reserve(account chain.AccountID, amount uint64) error
}

// Params configures deposits, bounds and moderators.
type Params struct {
	GroupDeposit              uint64
	MaxGroupMembers           uint32
	MaxGroupNameLength        uint32
	MaxGroupDescriptionLength uint32
	MaxMessageLength          uint32

	// Moderators may update reputation and report status.
	Moderators []chain.AccountID
}

// DefaultParams returns the stock parameters with no moderators.
func DefaultParams() Params {
	return Params{
		GroupDeposit:              DefaultGroupDeposit,
		MaxGroupMembers:           DefaultMaxGroupMembers,
		MaxGroupNameLength:        DefaultMaxGroupNameLength,
		MaxGroupDescriptionLength: DefaultMaxGroupDescriptionLength,
		MaxMessageLength:          DefaultMaxMessageLength,
	}
}

type memberKey = kv.Pair[uint64, chain.AccountID]

// accountPair is (blocker, blocked).
type accountPair = kv.Pair[chain.AccountID, chain.AccountID]

type inboxKey = kv.Pair[chain.AccountID, uint64]

// Module is the community module.
type Module struct {
	params Params
	ledger Ledger

	nextGroupID   *kv.Counter
	nextMessageID *kv.Counter
	nextReportID  *kv.Counter

	groups   *kv.Map[uint64, Group]
	members  *kv.Set[memberKey]
	admins   *kv.Set[memberKey]
	messages *kv.Map[uint64, Message]
	inbox    *kv.Set[inboxKey]
	reports  *kv.Map[uint64, Report]
	rep      *kv.Map[chain.AccountID, Reputation]
	blocked  *kv.Set[accountPair]
}

// New creates the module with its containers attached to j.
func New(j *kv.Journal, ledger Ledger, params Params) *Module {
	params.Moderators = slices.Clone(params.Moderators)
	return &Module{
		params:        params,
		ledger:        ledger,
		nextGroupID:   kv.NewCounter(j, 0, math.MaxUint64),
		nextMessageID: kv.NewCounter(j, 0, math.MaxUint64),
		nextReportID:  kv.NewCounter(j, 0, math.MaxUint64),
		groups:        kv.NewMap[uint64, Group](j, cmp.Compare[uint64]).Digested(groupEntry),
		members:       kv.NewSet(j, kv.ComparePairs[uint64, chain.AccountID]).Digested(memberEntry),
		admins:        kv.NewSet(j, kv.ComparePairs[uint64, chain.AccountID]).Digested(memberEntry),
		messages:      kv.NewMap[uint64, Message](j, cmp.Compare[uint64]).Digested(messageEntry),
		inbox:         kv.NewSet(j, kv.ComparePairs[chain.AccountID, uint64]).Digested(inboxEntry),
		reports:       kv.NewMap[uint64, Report](j, cmp.Compare[uint64]).Digested(reportEntry),
		rep:           kv.NewMap[chain.AccountID, Reputation](j, cmp.Compare[chain.AccountID]).Digested(reputationEntry),
		blocked:       kv.NewSet(j, kv.ComparePairs[chain.AccountID, chain.AccountID]).Digested(blockEntry),
	}
}

// Name implements chain.Module.
func (m *Module) Name() string { return Name }

// IsModerator reports whether account may moderate.
func (m *Module) IsModerator(account chain.AccountID) bool {
	return slices.Contains(m.params.Moderators, account)
}

// Apply implements chain.Module.
func (m *Module) Apply(ctx *chain.Ctx, action string, args ir.Object) (ir.Object, error) {
	h, ok := handlers[action]
	if !ok {
		return nil, &chain.UnknownError{Module: Name, Kind: "action", Name: action}
	}
	return h(m, ctx, args)
}

type handler func(m *Module, ctx *chain.Ctx, args ir.Object) (ir.Object, error)

var handlers = map[string]handler{
	"create_group":         (*Module).applyCreateGroup,
	"join_group":           (*Module).applyJoinGroup,
	"leave_group":          (*Module).applyLeaveGroup,
	"update_group":         (*Module).applyUpdateGroup,
	"send_private_message": (*Module).applySendMessage,
	"mark_message_read":    (*Module).applyMarkRead,
	"report_content":       (*Module).applyReport,
	"update_report_status": (*Module).applyReportStatus,
	"block_user":           (*Module).applyBlock,
	"unblock_user":         (*Module).applyUnblock,
	"update_reputation":    (*Module).applyReputation,
}

func saturatingInc(n uint32) uint32 {
	if n == math.MaxUint32 {
		return n
	}
	return n + 1
}

func saturatingDec(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return n - 1
}
