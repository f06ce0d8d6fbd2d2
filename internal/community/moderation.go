package community

import (
	"fmt"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// ReportReason classifies a content report.
type ReportReason string

// Report reasons.
const (
	ReasonSpam                 ReportReason = "Spam"
	ReasonHarassment           ReportReason = "Harassment"
	ReasonInappropriateContent ReportReason = "InappropriateContent"
	ReasonCopyright            ReportReason = "Copyright"
	ReasonFakeNews             ReportReason = "FakeNews"
	ReasonOther                ReportReason = "Other"
)

// ReportStatus is a report's moderation state.
type ReportStatus string

// Report statuses. New reports are always Pending.
const (
	StatusPending     ReportStatus = "Pending"
	StatusUnderReview ReportStatus = "UnderReview"
	StatusResolved    ReportStatus = "Resolved"
	StatusDismissed   ReportStatus = "Dismissed"
)

// ParseReason validates a report reason.
func ParseReason(s string) (ReportReason, error) {
	switch r := ReportReason(s); r {
	case ReasonSpam, ReasonHarassment, ReasonInappropriateContent, ReasonCopyright, ReasonFakeNews, ReasonOther:
		return r, nil
	}
	return "", fmt.Errorf("unknown report reason %q", s)
}

// ParseStatus validates a report status.
func ParseStatus(s string) (ReportStatus, error) {
	switch st := ReportStatus(s); st {
	case StatusPending, StatusUnderReview, StatusResolved, StatusDismissed:
		return st, nil
	}
	return "", fmt.Errorf("unknown report status %q", s)
}

// Report is a moderation report. Both targets may be absent.
type Report struct {
	Reporter      chain.AccountID
	TargetAccount *chain.AccountID
	ContentHash   *string
	Reason        ReportReason
	Description   string
	Timestamp     chain.Time
	Status        ReportStatus
}

// Reputation is an account's moderation score.
type Reputation struct {
	Score         uint32
	PositiveVotes uint32
	NegativeVotes uint32
	LastUpdated   chain.Time
}

type reportArgs struct {
	TargetAccount *chain.AccountID `mapstructure:"target_account,omitempty"`
	ContentHash   *string          `mapstructure:"content_hash,omitempty"`
	Reason        string           `mapstructure:"reason"`
	Description   string           `mapstructure:"description"`
}

type reportStatusArgs struct {
	ReportID uint64 `mapstructure:"report_id"`
	Status   string `mapstructure:"status"`
}

type targetArgs struct {
	Target chain.AccountID `mapstructure:"target"`
}

type reputationArgs struct {
	Target   chain.AccountID `mapstructure:"target"`
	Positive bool            `mapstructure:"positive"`
}

func (m *Module) applyReport(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a reportArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	reason, err := ParseReason(a.Reason)
	if err != nil {
		return nil, chain.Reject(Name, chain.CodeInvalidArguments, "%v", err)
	}
	id, err := m.ReportContent(ctx, a.TargetAccount, a.ContentHash, reason, a.Description)
	if err != nil {
		return nil, err
	}
	return ir.Obj(ir.O("report_id", ir.Uint(id))), nil
}

func (m *Module) applyReportStatus(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a reportStatusArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	status, err := ParseStatus(a.Status)
	if err != nil {
		return nil, chain.Reject(Name, chain.CodeInvalidArguments, "%v", err)
	}
	return ir.Object{}, m.UpdateReportStatus(ctx, a.ReportID, status)
}

func (m *Module) applyBlock(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a targetArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	return ir.Object{}, m.Block(ctx, a.Target)
}

func (m *Module) applyUnblock(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a targetArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	return ir.Object{}, m.Unblock(ctx, a.Target)
}

func (m *Module) applyReputation(ctx *chain.Ctx, args ir.Object) (ir.Object, error) {
	var a reputationArgs
	if err := chain.DecodeArgs(Name, args, &a); err != nil {
		return nil, err
	}
	score, err := m.UpdateReputation(ctx, a.Target, a.Positive)
	if err != nil {
		return nil, err
	}
	return ir.Obj(ir.O("new_score", ir.Int(score))), nil
}

// ReportContent files a Pending report.
func (m *Module) ReportContent(ctx *chain.Ctx, target *chain.AccountID, contentHash *string, reason ReportReason, description string) (uint64, error) {
	id, err := m.nextReportID.Allocate()
	if err != nil {
		return 0, chain.Reject(Name, chain.CodeIDExhausted, "%v", err)
	}

	r := Report{
		Reporter:    ctx.Caller,
		ContentHash: cloneString(contentHash),
		Reason:      reason,
		Description: description,
		Timestamp:   ctx.Time,
		Status:      StatusPending,
	}
	if target != nil {
		t := *target
		r.TargetAccount = &t
	}
	m.reports.Insert(id, r)

	ctx.Emit("ContentReported",
		ir.O("report_id", ir.Uint(id)),
		ir.O("reporter", chain.Account(ctx.Caller)),
	)
	return id, nil
}

// UpdateReportStatus moves a report to status. Moderators only.
func (m *Module) UpdateReportStatus(ctx *chain.Ctx, reportID uint64, status ReportStatus) error {
	if !m.IsModerator(ctx.Caller) {
		return chain.Reject(Name, chain.CodeUnauthorized, "%s is not a moderator", ctx.Caller)
	}
	r, ok := m.reports.Get(reportID)
	if !ok {
		return chain.Reject(Name, chain.CodeReportNotFound, "report %d", reportID)
	}

	r.Status = status
	m.reports.Insert(reportID, r)

	ctx.Emit("ReportStatusUpdated",
		ir.O("report_id", ir.Uint(reportID)),
		ir.O("new_status", ir.String(status)),
	)
	return nil
}

// Block stops target from messaging the caller.
func (m *Module) Block(ctx *chain.Ctx, target chain.AccountID) error {
	if target == ctx.Caller {
		return chain.Reject(Name, chain.CodeCannotBlockSelf, "%s", target)
	}
	if !m.blocked.Add(kv.P(ctx.Caller, target)) {
		return chain.Reject(Name, chain.CodeAlreadyBlocked, "%s -> %s", ctx.Caller, target)
	}
	ctx.Emit("UserBlocked",
		ir.O("blocker", chain.Account(ctx.Caller)),
		ir.O("blocked", chain.Account(target)),
	)
	return nil
}

// Unblock lifts a block set by the caller.
func (m *Module) Unblock(ctx *chain.Ctx, target chain.AccountID) error {
	if !m.blocked.Remove(kv.P(ctx.Caller, target)) {
		return chain.Reject(Name, chain.CodeNotBlocked, "%s -> %s", ctx.Caller, target)
	}
	ctx.Emit("UserUnblocked",
		ir.O("unblocker", chain.Account(ctx.Caller)),
		ir.O("unblocked", chain.Account(target)),
	)
	return nil
}

// Reputation returns the account's reputation, or the default for an
// account never rated.
func (m *Module) Reputation(account chain.AccountID) (Reputation, bool) {
	r, ok := m.rep.Get(account)
	if !ok {
		return Reputation{Score: DefaultReputation}, false
	}
	return r, true
}

// UpdateReputation adjusts target's score by one. Moderators only.
func (m *Module) UpdateReputation(ctx *chain.Ctx, target chain.AccountID, positive bool) (uint32, error) {
	if !m.IsModerator(ctx.Caller) {
		return 0, chain.Reject(Name, chain.CodeUnauthorized, "%s is not a moderator", ctx.Caller)
	}

	r, _ := m.Reputation(target)
	if positive {
		r.PositiveVotes = saturatingInc(r.PositiveVotes)
		r.Score = saturatingInc(r.Score)
	} else {
		r.NegativeVotes = saturatingInc(r.NegativeVotes)
		r.Score = saturatingDec(r.Score)
	}
	r.LastUpdated = ctx.Time
	m.rep.Insert(target, r)

	ctx.Emit("ReputationUpdated",
		ir.O("user", chain.Account(target)),
		ir.O("new_score", ir.Int(r.Score)),
	)
	return r.Score, nil
}
