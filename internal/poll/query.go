package poll

import (
	"strconv"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

// Results is a poll's tally, recomputed from the voter sequence.
type Results struct {
	PollID      ID
	Title       string
	OptionVotes []uint32
	TotalVotes  uint32
	IsEnded     bool
}

type voterArgs struct {
	PollID uint64          `mapstructure:"poll_id"`
	Voter  chain.AccountID `mapstructure:"voter"`
}

// Query implements chain.Module.
func (m *Module) Query(now chain.Time, query string, args ir.Object) (ir.Value, error) {
	switch query {
	case "get_poll":
		var a pollIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		id, p, ok := m.lookup(a.PollID)
		if !ok {
			return ir.Null{}, nil
		}
		return pollValue(id, p), nil

	case "get_poll_results":
		var a pollIDArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		r, err := m.Results(now, a.PollID)
		if err != nil {
			return nil, err
		}
		return resultsValue(r), nil

	case "has_voted":
		var a voterArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		_, ok := m.UserVote(a.PollID, a.Voter)
		return ir.Bool(ok), nil

	case "get_user_vote":
		var a voterArgs
		if err := chain.DecodeArgs(Name, args, &a); err != nil {
			return nil, err
		}
		v, ok := m.UserVote(a.PollID, a.Voter)
		if !ok {
			return ir.Null{}, nil
		}
		return voteValue(v), nil

	case "get_total_polls":
		if err := chain.DecodeArgs(Name, args, &struct{}{}); err != nil {
			return nil, err
		}
		return ir.Int(m.TotalPolls()), nil

	case "get_owner":
		if err := chain.DecodeArgs(Name, args, &struct{}{}); err != nil {
			return nil, err
		}
		return chain.Account(m.params.Owner), nil

	default:
		return nil, &chain.UnknownError{Module: Name, Kind: "query", Name: query}
	}
}

// Poll returns a poll by id.
func (m *Module) Poll(pollID uint64) (Poll, bool) {
	_, p, ok := m.lookup(pollID)
	return p, ok
}

// Results tallies a poll at logical time now.
func (m *Module) Results(now chain.Time, pollID uint64) (Results, error) {
	id, p, ok := m.lookup(pollID)
	if !ok {
		return Results{}, chain.Reject(Name, chain.CodePollNotFound, "poll %d", pollID)
	}

	tally := make([]uint32, len(p.Options))
	for i := uint32(0); i < p.TotalVotes; i++ {
		voter, ok := m.voters.Get(voterKey{First: id, Second: i})
		if !ok {
			continue
		}
		if v, ok := m.votes.Get(voteKey{First: id, Second: voter}); ok && int(v.OptionIndex) < len(tally) {
			tally[v.OptionIndex]++
		}
	}

	return Results{
		PollID:      id,
		Title:       p.Title,
		OptionVotes: tally,
		TotalVotes:  p.TotalVotes,
		IsEnded:     p.Ended(now),
	}, nil
}

// UserVote returns the voter's vote on a poll.
func (m *Module) UserVote(pollID uint64, voter chain.AccountID) (Vote, bool) {
	id, _, ok := m.lookup(pollID)
	if !ok {
		return Vote{}, false
	}
	return m.votes.Get(voteKey{First: id, Second: voter})
}

// TotalPolls returns the number of polls ever created.
func (m *Module) TotalPolls() uint64 {
	return m.nextID.Peek() - 1
}

// Snapshot implements chain.Module.
func (m *Module) Snapshot() ir.Object {
	polls := ir.Object{}
	for _, id := range m.polls.Keys() {
		p, _ := m.polls.Get(id)
		polls[strconv.FormatUint(uint64(id), 10)] = pollValue(id, p)
	}

	votes := ir.Object{}
	for _, k := range m.votes.Keys() {
		v, _ := m.votes.Get(k)
		pid := strconv.FormatUint(uint64(k.First), 10)
		byVoter, _ := votes[pid].(ir.Object)
		if byVoter == nil {
			byVoter = ir.Object{}
			votes[pid] = byVoter
		}
		byVoter[string(k.Second)] = voteValue(v)
	}

	voters := ir.Object{}
	for _, id := range m.polls.Keys() {
		p, _ := m.polls.Get(id)
		seq := make(ir.Array, 0, p.TotalVotes)
		for i := uint32(0); i < p.TotalVotes; i++ {
			voter, _ := m.voters.Get(voterKey{First: id, Second: i})
			seq = append(seq, chain.Account(voter))
		}
		voters[strconv.FormatUint(uint64(id), 10)] = seq
	}

	return ir.Obj(
		ir.O("owner", chain.Account(m.params.Owner)),
		ir.O("next_poll_id", ir.Int(m.nextID.Peek())),
		ir.O("polls", polls),
		ir.O("votes", votes),
		ir.O("voters", voters),
	)
}

// Digest implements chain.Module.
func (m *Module) Digest() ir.Object {
	return ir.Obj(
		ir.O("owner", chain.Account(m.params.Owner)),
		ir.O("next_poll_id", ir.Int(m.nextID.Peek())),
		ir.O("polls", kv.Summary(m.polls)),
		ir.O("votes", kv.Summary(m.votes)),
		ir.O("voters", kv.Summary(m.voters)),
	)
}

func pollEntry(id ID, p Poll) ir.Value { return pollValue(id, p) }

func voteEntry(k voteKey, v Vote) ir.Value {
	return ir.Array{ir.Int(k.First), chain.Account(k.Second), voteValue(v)}
}

func voterEntry(k voterKey, voter chain.AccountID) ir.Value {
	return ir.Array{ir.Int(k.First), ir.Int(k.Second), chain.Account(voter)}
}

func pollValue(id ID, p Poll) ir.Object {
	return ir.Obj(
		ir.O("poll_id", ir.Int(id)),
		ir.O("title", ir.String(p.Title)),
		ir.O("description", ir.String(p.Description)),
		ir.O("options", ir.Strings(p.Options)),
		ir.O("creator", chain.Account(p.Creator)),
		ir.O("start_time", ir.Uint(p.StartTime)),
		ir.O("end_time", ir.Uint(p.EndTime)),
		ir.O("is_active", ir.Bool(p.IsActive)),
		ir.O("total_votes", ir.Int(p.TotalVotes)),
	)
}

func voteValue(v Vote) ir.Object {
	return ir.Obj(
		ir.O("option_index", ir.Int(v.OptionIndex)),
		ir.O("timestamp", ir.Uint(v.Timestamp)),
	)
}

func resultsValue(r Results) ir.Object {
	tally := make(ir.Array, len(r.OptionVotes))
	for i, n := range r.OptionVotes {
		tally[i] = ir.Int(n)
	}
	return ir.Obj(
		ir.O("poll_id", ir.Int(r.PollID)),
		ir.O("title", ir.String(r.Title)),
		ir.O("option_votes", tally),
		ir.O("total_votes", ir.Int(r.TotalVotes)),
		ir.O("is_ended", ir.Bool(r.IsEnded)),
	)
}
