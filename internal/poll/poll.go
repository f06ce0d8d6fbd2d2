// Package poll implements the polling and voting module: poll lifecycle,
// one vote per (poll, voter), and tallies derived on read.
package poll

import (
	"cmp"
	"math"
	"math/bits"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Name is the poll module's routing key.
const Name = "poll"

// DefaultTimeUnitsPerHour converts duration_hours into millisecond time.
const DefaultTimeUnitsPerHour = 3_600_000

// Sentinel rejections for errors.Is.
var (
	ErrPollNotFound     = chain.Sentinel(Name, chain.CodePollNotFound)
	ErrPollEnded        = chain.Sentinel(Name, chain.CodePollEnded)
	ErrPollNotStarted   = chain.Sentinel(Name, chain.CodePollNotStarted)
	ErrInvalidOption    = chain.Sentinel(Name, chain.CodeInvalidOption)
	ErrAlreadyVoted     = chain.Sentinel(Name, chain.CodeAlreadyVoted)
	ErrNotAuthorized    = chain.Sentinel(Name, chain.CodeNotAuthorized)
	ErrInvalidTimeRange = chain.Sentinel(Name, chain.CodeInvalidTimeRange)
	ErrEmptyOptions     = chain.Sentinel(Name, chain.CodeEmptyOptions)
)

// ID identifies a poll. Ids start at 1 and are never reused.
type ID uint32

// Poll is a single poll. Options never change after creation.
type Poll struct {
	Title       string
	Description string
	Options     []string
	Creator     chain.AccountID
	StartTime   chain.Time
	EndTime     chain.Time
	IsActive    bool
	TotalVotes  uint32
}

// Vote is one voter's choice on one poll. It is never overwritten.
type Vote struct {
	OptionIndex uint32
	Timestamp   chain.Time
}

// AcceptsVotes reports whether the poll is open at now.
func (p Poll) AcceptsVotes(now chain.Time) bool {
	return p.IsActive && p.StartTime <= now && now <= p.EndTime
}

// Ended reports whether the poll is closed at now.
func (p Poll) Ended(now chain.Time) bool {
	return !p.IsActive || now > p.EndTime
}

// Params configures the module.
type Params struct {
	// Owner may end any poll.
	Owner chain.AccountID

	// TimeUnitsPerHour converts duration_hours into logical time.
	TimeUnitsPerHour uint64
}

type voteKey = kv.Pair[ID, chain.AccountID]

// voterKey indexes the append-only voter sequence by (poll, position).
type voterKey = kv.Pair[ID, uint32]

// Module is the poll module.
type Module struct {
	params Params
	nextID *kv.Counter
	polls  *kv.Map[ID, Poll]
	votes  *kv.Map[voteKey, Vote]
	voters *kv.Map[voterKey, chain.AccountID]
}

// New creates the module with its containers attached to j.
func New(j *kv.Journal, params Params) *Module {
	if params.TimeUnitsPerHour == 0 {
		params.TimeUnitsPerHour = DefaultTimeUnitsPerHour
	}
	return &Module{
		params: params,
		nextID: kv.NewCounter(j, 1, math.MaxUint32),
		polls:  kv.NewMap[ID, Poll](j, cmp.Compare[ID]).Digested(pollEntry),
		votes:  kv.NewMap[voteKey, Vote](j, kv.ComparePairs[ID, chain.AccountID]).Digested(voteEntry),
		voters: kv.NewMap[voterKey, chain.AccountID](j, kv.ComparePairs[ID, uint32]).Digested(voterEntry),
	}
}

// Name implements chain.Module.
func (m *Module) Name() string { return Name }

// Owner returns the module owner.
func (m *Module) Owner() chain.AccountID { return m.params.Owner }

// Apply implements chain.Module.
func (m *Module) Apply(ctx *chain.Ctx, action string, args ir.Object) (ir.Object, error) {
	switch action {
	case "create_poll":
		var a createPollArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		id, err := m.CreatePoll(ctx, a.Title, a.Description, a.Options, a.DurationHours)
		if err != nil {
			return nil, err
		}
		return ir.Obj(ir.O("poll_id", ir.Int(id))), nil

	case "vote":
		var a voteArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		return ir.Object{}, m.Vote(ctx, a.PollID, a.OptionIndex)

	case "end_poll":
		var a pollIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		return ir.Object{}, m.EndPoll(ctx, a.PollID)

	default:
		return nil, &chain.UnknownError{Module: Name, Kind: "action", Name: action}
	}
}

type createPollArgs struct {
	Title         string   `mapstructure:"title"`
	Description   string   `mapstructure:"description"`
	Options       []string `mapstructure:"options"`
	DurationHours uint64   `mapstructure:"duration_hours"`
}

type voteArgs struct {
	PollID      uint64 `mapstructure:"poll_id"`
	OptionIndex uint64 `mapstructure:"option_index"`
}

type pollIDArgs struct {
	PollID uint64 `mapstructure:"poll_id"`
}

// CreatePoll opens a poll running from now for durationHours.
func (m *Module) CreatePoll(ctx *chain.Ctx, title, description string, options []string, durationHours uint64) (ID, error) {
	if len(options) == 0 {
		return 0, chain.Reject(Name, chain.CodeEmptyOptions, "a poll needs at least one option")
	}

	now := uint64(ctx.Time)
	hi, span := bits.Mul64(durationHours, m.params.TimeUnitsPerHour)
	end, carry := bits.Add64(now, span, 0)
	if hi != 0 || carry != 0 {
		return 0, chain.Reject(Name, chain.CodeInvalidTimeRange, "duration of %d hours overflows logical time", durationHours)
	}
	if end <= now {
		return 0, chain.Reject(Name, chain.CodeInvalidTimeRange, "end time %d is not after start %d", end, now)
	}

	raw, err := m.nextID.Allocate()
	if err != nil {
		return 0, chain.Reject(Name, chain.CodeIDExhausted, "%v", err)
	}
	id := ID(raw)

	m.polls.Insert(id, Poll{
		Title:       title,
		Description: description,
		Options:     append([]string(nil), options...),
		Creator:     ctx.Caller,
		StartTime:   ctx.Time,
		EndTime:     chain.Time(end),
		IsActive:    true,
	})

	ctx.Emit("PollCreated",
		ir.O("poll_id", ir.Int(id)),
		ir.O("creator", chain.Account(ctx.Caller)),
		ir.O("title", ir.String(title)),
	)
	return id, nil
}

// Vote records the caller's choice on an open poll.
func (m *Module) Vote(ctx *chain.Ctx, pollID, optionIndex uint64) error {
	id, p, ok := m.lookup(pollID)
	if !ok {
		return chain.Reject(Name, chain.CodePollNotFound, "poll %d", pollID)
	}
	if !p.IsActive {
		return chain.Reject(Name, chain.CodePollEnded, "poll %d was ended", pollID)
	}
	if ctx.Time < p.StartTime {
		return chain.Reject(Name, chain.CodePollNotStarted, "poll %d starts at %d", pollID, p.StartTime)
	}
	if ctx.Time > p.EndTime {
		return chain.Reject(Name, chain.CodePollEnded, "poll %d closed at %d", pollID, p.EndTime)
	}
	if optionIndex >= uint64(len(p.Options)) {
		return chain.Reject(Name, chain.CodeInvalidOption, "option %d of %d", optionIndex, len(p.Options))
	}
	key := kv.P(id, ctx.Caller)
	if m.votes.Contains(key) {
		return chain.Reject(Name, chain.CodeAlreadyVoted, "%s on poll %d", ctx.Caller, pollID)
	}
	if p.TotalVotes == math.MaxUint32 {
		return chain.Reject(Name, chain.CodeIDExhausted, "poll %d vote count exhausted", pollID)
	}

	m.votes.Insert(key, Vote{OptionIndex: uint32(optionIndex), Timestamp: ctx.Time})
	m.voters.Insert(kv.P(id, p.TotalVotes), ctx.Caller)
	p.TotalVotes++
	m.polls.Insert(id, p)

	ctx.Emit("VoteCast",
		ir.O("poll_id", ir.Int(id)),
		ir.O("voter", chain.Account(ctx.Caller)),
		ir.O("option_index", ir.Int(optionIndex)),
	)
	return nil
}

// EndPoll deactivates a poll. Only the creator or the module owner may end
// it, and only once.
func (m *Module) EndPoll(ctx *chain.Ctx, pollID uint64) error {
	id, p, ok := m.lookup(pollID)
	if !ok {
		return chain.Reject(Name, chain.CodePollNotFound, "poll %d", pollID)
	}
	if ctx.Caller != p.Creator && ctx.Caller != m.params.Owner {
		return chain.Reject(Name, chain.CodeNotAuthorized, "%s may not end poll %d", ctx.Caller, pollID)
	}
	if !p.IsActive {
		return chain.Reject(Name, chain.CodePollEnded, "poll %d was already ended", pollID)
	}

	p.IsActive = false
	m.polls.Insert(id, p)

	ctx.Emit("PollEnded",
		ir.O("poll_id", ir.Int(id)),
		ir.O("total_votes", ir.Int(p.TotalVotes)),
	)
	return nil
}

func (m *Module) lookup(pollID uint64) (ID, Poll, bool) {
	if pollID > math.MaxUint32 {
		return 0, Poll{}, false
	}
	id := ID(pollID)
	p, ok := m.polls.Get(id)
	return id, p, ok
}
