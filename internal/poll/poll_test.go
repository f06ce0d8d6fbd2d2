package poll

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
)

const hour = DefaultTimeUnitsPerHour

func newModule(t *testing.T) (*Module, *kv.Journal) {
	t.Helper()
	j := kv.NewJournal()
	return New(j, Params{Owner: "owner"}), j
}

func at(caller chain.AccountID, now chain.Time) *chain.Ctx {
	return chain.NewCtx(Name, chain.Call{Caller: caller, Time: now})
}

func mustCreate(t *testing.T, m *Module, caller chain.AccountID, now chain.Time, options []string, hours uint64) ID {
	t.Helper()
	id, err := m.CreatePoll(at(caller, now), "Lunch", "where to eat", options, hours)
	require.NoError(t, err)
	return id
}

func TestCreatePoll(t *testing.T) {
	m, _ := newModule(t)
	ctx := at("alice", 1000)

	id, err := m.CreatePoll(ctx, "Lunch", "where to eat", []string{"A", "B"}, 24)
	require.NoError(t, err)
	assert.Equal(t, ID(1), id, "poll ids start at 1")

	p, ok := m.Poll(1)
	require.True(t, ok)
	assert.Equal(t, chain.Time(1000), p.StartTime)
	assert.Equal(t, chain.Time(1000+24*hour), p.EndTime)
	assert.True(t, p.IsActive)
	assert.Equal(t, chain.AccountID("alice"), p.Creator)

	require.Len(t, ctx.Events(), 1)
	assert.Equal(t, "PollCreated", ctx.Events()[0].Name)
	assert.Equal(t, ir.Object{
		"poll_id": ir.Int(1),
		"creator": ir.String("alice"),
		"title":   ir.String("Lunch"),
	}, ctx.Events()[0].Fields)

	assert.Equal(t, uint64(1), m.TotalPolls())
}

func TestCreatePollRejections(t *testing.T) {
	m, _ := newModule(t)

	_, err := m.CreatePoll(at("alice", 0), "t", "d", nil, 24)
	assert.ErrorIs(t, err, ErrEmptyOptions)

	_, err = m.CreatePoll(at("alice", 0), "t", "d", []string{"A"}, 0)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = m.CreatePoll(at("alice", math.MaxUint64-10), "t", "d", []string{"A"}, 1)
	assert.ErrorIs(t, err, ErrInvalidTimeRange, "end time overflow")

	_, err = m.CreatePoll(at("alice", 0), "t", "d", []string{"A"}, math.MaxUint64)
	assert.ErrorIs(t, err, ErrInvalidTimeRange, "duration overflow")

	assert.Equal(t, uint64(0), m.TotalPolls())
}

func TestVoteScenario(t *testing.T) {
	m, _ := newModule(t)
	id := mustCreate(t, m, "alice", 0, []string{"A", "B"}, 24)

	ctx := at("xavier", 10)
	require.NoError(t, m.Vote(ctx, uint64(id), 0))
	require.Len(t, ctx.Events(), 1)
	assert.Equal(t, ir.Object{
		"poll_id":      ir.Int(1),
		"voter":        ir.String("xavier"),
		"option_index": ir.Int(0),
	}, ctx.Events()[0].Fields)

	err := m.Vote(at("xavier", 11), uint64(id), 1)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	r, err := m.Results(12, uint64(id))
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0}, r.OptionVotes)
	assert.Equal(t, uint32(1), r.TotalVotes)
	assert.False(t, r.IsEnded)

	v, ok := m.UserVote(uint64(id), "xavier")
	require.True(t, ok)
	assert.Equal(t, Vote{OptionIndex: 0, Timestamp: 10}, v)
}

func TestVoteCheckOrder(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 100, []string{"A", "B"}, 1))

	tests := []struct {
		name   string
		pollID uint64
		option uint64
		now    chain.Time
		want   error
	}{
		{"missing poll", 99, 0, 100, ErrPollNotFound},
		{"poll id beyond u32", math.MaxUint32 + 1, 0, 100, ErrPollNotFound},
		{"before start", id, 0, 99, ErrPollNotStarted},
		{"after end", id, 0, 100 + hour + 1, ErrPollEnded},
		{"bad option", id, 2, 100, ErrInvalidOption},
		{"end boundary is open", id, 1, 100 + hour, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Vote(at("voter-"+chain.AccountID(tt.name), tt.now), tt.pollID, tt.option)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVoteOnEndedPoll(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A"}, 24))
	require.NoError(t, m.EndPoll(at("alice", 1), id))

	err := m.Vote(at("bob", 2), id, 5)
	assert.ErrorIs(t, err, ErrPollEnded, "inactive is checked before option bounds")
}

func TestEndPoll(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A", "B"}, 24))
	require.NoError(t, m.Vote(at("bob", 1), id, 1))

	err := m.EndPoll(at("mallory", 2), id)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	ctx := at("alice", 3)
	require.NoError(t, m.EndPoll(ctx, id))
	require.Len(t, ctx.Events(), 1)
	assert.Equal(t, ir.Object{"poll_id": ir.Int(1), "total_votes": ir.Int(1)}, ctx.Events()[0].Fields)

	// Ending twice is rejected and emits nothing. A repeated end_poll used
	// to succeed silently.
	again := at("owner", 4)
	err = m.EndPoll(again, id)
	assert.ErrorIs(t, err, ErrPollEnded, "a second end_poll is a rejection, not a no-op success")
	assert.Empty(t, again.Events())

	p, _ := m.Poll(id)
	assert.False(t, p.IsActive)
	assert.Equal(t, uint32(1), p.TotalVotes)

	r, err := m.Results(4, id)
	require.NoError(t, err)
	assert.True(t, r.IsEnded)

	_, err = m.Results(4, 42)
	assert.ErrorIs(t, err, ErrPollNotFound)
}

func TestOwnerMayEndAnyPoll(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A"}, 1))
	require.NoError(t, m.EndPoll(at("owner", 1), id))
}

func TestResultsRightAfterCreation(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A", "B", "C"}, 2))

	r, err := m.Results(0, id)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 0}, r.OptionVotes)
	assert.Zero(t, r.TotalVotes)

	r, err = m.Results(2*hour+1, id)
	require.NoError(t, err)
	assert.True(t, r.IsEnded, "time past end ends the poll without end_poll")
}

func TestAtMostOneVotePerVoter(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A", "B"}, 24))

	voters := []chain.AccountID{"a", "b", "a", "c", "b", "a"}
	accepted := 0
	for i, voter := range voters {
		err := m.Vote(at(voter, chain.Time(i)), id, uint64(i%2))
		if err == nil {
			accepted++
			continue
		}
		require.True(t, errors.Is(err, ErrAlreadyVoted))
	}

	assert.Equal(t, 3, accepted)
	r, err := m.Results(10, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), r.TotalVotes)
	assert.Equal(t, uint32(3), r.OptionVotes[0]+r.OptionVotes[1])
}

func TestApplyDecodesArguments(t *testing.T) {
	m, _ := newModule(t)

	result, err := m.Apply(at("alice", 0), "create_poll", ir.Object{
		"title":          ir.String("Lunch"),
		"description":    ir.String(""),
		"options":        ir.Strings([]string{"A", "B"}),
		"duration_hours": ir.Int(24),
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"poll_id": ir.Int(1)}, result)

	_, err = m.Apply(at("bob", 1), "vote", ir.Object{"poll_id": ir.Int(1)})
	assert.Equal(t, chain.CodeInvalidArguments, chain.CodeOf(err))

	_, err = m.Apply(at("bob", 1), "vote", ir.Object{"poll_id": ir.Int(1), "option_index": ir.Int(1)})
	require.NoError(t, err)

	_, err = m.Apply(at("alice", 2), "end_poll", ir.Object{"poll_id": ir.Int(1)})
	require.NoError(t, err)

	_, err = m.Apply(at("alice", 2), "delete_poll", ir.Object{})
	var unknown *chain.UnknownError
	assert.ErrorAs(t, err, &unknown)
}

func TestQueries(t *testing.T) {
	m, _ := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A", "B"}, 24))
	require.NoError(t, m.Vote(at("bob", 1), id, 1))

	v, err := m.Query(1, "has_voted", ir.Object{"poll_id": ir.Int(1), "voter": ir.String("bob")})
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), v)

	v, err = m.Query(1, "get_user_vote", ir.Object{"poll_id": ir.Int(1), "voter": ir.String("carol")})
	require.NoError(t, err)
	assert.Equal(t, ir.Null{}, v)

	v, err = m.Query(1, "get_poll", ir.Object{"poll_id": ir.Int(7)})
	require.NoError(t, err)
	assert.Equal(t, ir.Null{}, v)

	v, err = m.Query(1, "get_poll_results", ir.Object{"poll_id": ir.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"is_ended":false,"option_votes":[0,1],"poll_id":1,"title":"Lunch","total_votes":1}`,
		string(ir.MustCanonical(v)))

	v, err = m.Query(1, "get_total_polls", ir.Object{})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), v)

	v, err = m.Query(1, "get_owner", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.String("owner"), v)

	_, err = m.Query(1, "get_poll_results", ir.Object{"poll_id": ir.Int(9)})
	assert.ErrorIs(t, err, ErrPollNotFound)
}

func TestRollbackUndoesVote(t *testing.T) {
	m, j := newModule(t)
	id := uint64(mustCreate(t, m, "alice", 0, []string{"A"}, 24))
	before := ir.MustCanonical(m.Snapshot())
	digest := ir.MustCanonical(m.Digest())

	require.NoError(t, j.Begin())
	require.NoError(t, m.Vote(at("bob", 1), id, 0))
	assert.NotEqual(t, string(digest), string(ir.MustCanonical(m.Digest())))
	require.NoError(t, j.Rollback())

	assert.Equal(t, string(before), string(ir.MustCanonical(m.Snapshot())))
	assert.Equal(t, string(digest), string(ir.MustCanonical(m.Digest())))
	_, voted := m.UserVote(id, "bob")
	assert.False(t, voted)
}
