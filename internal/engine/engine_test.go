package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
)

func ctx() context.Context {
	return context.Background()
}

// args builds an argument object from alternating keys and values.
func args(kv ...any) ir.Object {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	obj, err := ir.ObjectFromGo(m)
	if err != nil {
		panic(err)
	}
	return obj
}

func testGenesis() Genesis {
	g := DefaultGenesis("owner")
	g.Endowments = map[chain.AccountID]uint64{
		"alice": 1000,
		"bob":   1000,
		"carol": 50,
	}
	return g
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBatchGenerator(constBatch("batch")),
	}, opts...)
	e, err := New(testGenesis(), opts...)
	require.NoError(t, err)
	return e
}

type constBatch string

func (c constBatch) Generate() string { return string(c) }

func mustApply(t *testing.T, e *Engine, req Request) ir.Receipt {
	t.Helper()
	r, err := e.Apply(ctx(), req)
	require.NoError(t, err)
	return r
}

func query(t *testing.T, e *Engine, module, name string, a ir.Object) ir.Value {
	t.Helper()
	v, err := e.QueryLatest(module, name, a)
	require.NoError(t, err)
	return v
}

func balance(t *testing.T, e *Engine, account string) (free, reserved uint64) {
	t.Helper()
	b := query(t, e, "escrow", "balance", args("account", account)).(ir.Object)
	return uint64(b["free"].(ir.Uint)), uint64(b["reserved"].(ir.Uint))
}

type memRecorder struct {
	entries []ir.LogEntry
}

func (m *memRecorder) Record(_ context.Context, a ir.Action, r ir.Receipt) error {
	m.entries = append(m.entries, ir.LogEntry{Action: a, Receipt: r})
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, ir.Action, ir.Receipt) error {
	return errors.New("disk full")
}

type failingObserver struct{ calls int }

func (f *failingObserver) Observe(context.Context, ir.Action, ir.Receipt) error {
	f.calls++
	return errors.New("broker down")
}

func TestEngine_GenesisEndowments(t *testing.T) {
	e := newTestEngine(t)

	free, reserved := balance(t, e, "alice")
	assert.Equal(t, uint64(1000), free)
	assert.Equal(t, uint64(0), reserved)

	free, _ = balance(t, e, "nobody")
	assert.Equal(t, uint64(0), free)

	assert.Equal(t, int64(0), e.Seq())
	assert.NotEmpty(t, e.StateRoot())
	assert.Equal(t, []string{"community", "escrow", "poll", "social"}, e.Modules())
}

func TestEngine_PollScenario(t *testing.T) {
	e := newTestEngine(t)

	created := mustApply(t, e, Request{
		Module: "poll", Action: "create_poll", Caller: "alice", Time: 1_000,
		Args: args("title", "Lunch", "description", "where", "options", []string{"A", "B"}, "duration_hours", 24),
	})
	require.True(t, created.Accepted())
	assert.Equal(t, int64(1), created.Seq)
	assert.Equal(t, ir.Int(1), created.Result["poll_id"])
	require.Len(t, created.Events, 1)
	assert.Equal(t, "PollCreated", created.Events[0].Name)

	voted := mustApply(t, e, Request{Module: "poll", Action: "vote", Caller: "xavier", Time: 2_000, Args: args("poll_id", 1, "option_index", 0)})
	require.True(t, voted.Accepted())

	again := mustApply(t, e, Request{Module: "poll", Action: "vote", Caller: "xavier", Time: 3_000, Args: args("poll_id", 1, "option_index", 1)})
	assert.Equal(t, string(chain.CodeAlreadyVoted), again.Outcome)
	assert.Equal(t, int64(3), again.Seq)
	assert.Empty(t, again.Events)
	assert.Equal(t, voted.StateRoot, again.StateRoot, "rejection leaves state root unchanged")

	results := query(t, e, "poll", "get_poll_results", args("poll_id", 1)).(ir.Object)
	assert.Equal(t, ir.Array{ir.Int(1), ir.Int(0)}, results["option_votes"])
	assert.Equal(t, ir.Int(1), results["total_votes"])
	assert.Equal(t, ir.Bool(false), results["is_ended"])
}

func TestEngine_PostScenario(t *testing.T) {
	e := newTestEngine(t)

	post := mustApply(t, e, Request{Module: "social", Action: "create_post", Caller: "alice", Time: 1, Args: args("content_hash", "QmPost")})
	require.True(t, post.Accepted())
	free, reserved := balance(t, e, "alice")
	assert.Equal(t, uint64(1000-10+5), free, "deposit reserved, reward minted")
	assert.Equal(t, uint64(10), reserved)

	like := mustApply(t, e, Request{Module: "social", Action: "like_post", Caller: "bob", Time: 2, Args: args("post_id", 0)})
	require.True(t, like.Accepted())
	require.Len(t, like.Events, 2)
	assert.Equal(t, "PostLiked", like.Events[0].Name)
	assert.Equal(t, "RewardDistributed", like.Events[1].Name)
	free, _ = balance(t, e, "alice")
	assert.Equal(t, uint64(996), free)

	twice := mustApply(t, e, Request{Module: "social", Action: "like_post", Caller: "bob", Time: 3, Args: args("post_id", 0)})
	assert.Equal(t, string(chain.CodeAlreadyLiked), twice.Outcome)

	unlike := mustApply(t, e, Request{Module: "social", Action: "unlike_post", Caller: "bob", Time: 4, Args: args("post_id", 0)})
	assert.True(t, unlike.Accepted())
	unlikeAgain := mustApply(t, e, Request{Module: "social", Action: "unlike_post", Caller: "bob", Time: 5, Args: args("post_id", 0)})
	assert.Equal(t, string(chain.CodeNotLiked), unlikeAgain.Outcome)

	free, _ = balance(t, e, "alice")
	assert.Equal(t, uint64(996), free, "unlike does not reverse the reward")
}

func TestEngine_GroupScenario(t *testing.T) {
	e := newTestEngine(t)

	created := mustApply(t, e, Request{
		Module: "community", Action: "create_group", Caller: "alice", Time: 1,
		Args: args("name", "gophers", "description", "go", "is_public", true),
	})
	require.True(t, created.Accepted())

	assert.True(t, mustApply(t, e, Request{Module: "community", Action: "join_group", Caller: "bob", Time: 2, Args: args("group_id", 0)}).Accepted())
	dup := mustApply(t, e, Request{Module: "community", Action: "join_group", Caller: "bob", Time: 3, Args: args("group_id", 0)})
	assert.Equal(t, string(chain.CodeAlreadyGroupMember), dup.Outcome)

	stranger := mustApply(t, e, Request{Module: "community", Action: "leave_group", Caller: "carol", Time: 4, Args: args("group_id", 0)})
	assert.Equal(t, string(chain.CodeNotGroupMember), stranger.Outcome)

	assert.True(t, mustApply(t, e, Request{Module: "community", Action: "leave_group", Caller: "bob", Time: 5, Args: args("group_id", 0)}).Accepted())

	group := query(t, e, "community", "get_group", args("group_id", 0)).(ir.Object)
	assert.Equal(t, ir.Int(1), group["member_count"])
}

func TestEngine_RejectionRollsBackEverything(t *testing.T) {
	e := newTestEngine(t)
	before := e.Snapshot()
	root := e.StateRoot()

	// carol holds 50; the group deposit is 100.
	r := mustApply(t, e, Request{
		Module: "community", Action: "create_group", Caller: "carol", Time: 1,
		Args: args("name", "poor", "description", "", "is_public", false),
	})
	assert.Equal(t, string(chain.CodeInsufficientBalance), r.Outcome)
	assert.Equal(t, root, r.StateRoot)
	assert.Equal(t, int64(1), e.Seq(), "rejections consume a seq")
	assert.Equal(t, ir.Object{"message": r.Result["message"]}, r.Result)

	if diff := cmp.Diff(before, e.Snapshot()); diff != "" {
		t.Errorf("state changed after rejection (-before +after):\n%s", diff)
	}

	// The group id was not consumed.
	ok := mustApply(t, e, Request{
		Module: "community", Action: "create_group", Caller: "alice", Time: 2,
		Args: args("name", "rich", "description", "", "is_public", true),
	})
	assert.Equal(t, ir.Uint(0), ok.Result["group_id"])
}

func TestEngine_InvalidArgumentsAreRejections(t *testing.T) {
	e := newTestEngine(t)

	r := mustApply(t, e, Request{Module: "poll", Action: "vote", Caller: "alice", Time: 1, Args: args("poll_id", 1)})
	assert.Equal(t, string(chain.CodeInvalidArguments), r.Outcome)
	assert.Contains(t, r.Result["message"], "option_index")
}

func TestEngine_UnknownNeverEntersLog(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Apply(ctx(), Request{Module: "bank", Action: "transfer", Caller: "alice", Time: 1})
	require.Error(t, err)
	assert.True(t, IsUnknown(err))

	_, err = e.Apply(ctx(), Request{Module: "poll", Action: "delete_poll", Caller: "alice", Time: 1})
	require.Error(t, err)
	assert.True(t, IsUnknown(err))

	_, err = e.Apply(ctx(), Request{Module: "escrow", Action: "transfer", Caller: "alice", Time: 1})
	assert.True(t, IsUnknown(err), "escrow accepts no direct actions")

	_, err = e.QueryLatest("poll", "list_everything", nil)
	assert.True(t, IsUnknown(err))

	assert.Equal(t, int64(0), e.Seq())
}

func TestEngine_TimeRegression(t *testing.T) {
	e := newTestEngine(t)
	mustApply(t, e, Request{Module: "social", Action: "update_profile", Caller: "alice", Time: 100, Args: args("profile_hash", "p1")})

	// Equal time is fine.
	mustApply(t, e, Request{Module: "social", Action: "update_profile", Caller: "alice", Time: 100, Args: args("profile_hash", "p2")})

	_, err := e.Apply(ctx(), Request{Module: "social", Action: "update_profile", Caller: "alice", Time: 99, Args: args("profile_hash", "p3")})
	require.Error(t, err)
	assert.True(t, IsTimeRegression(err))
	assert.Equal(t, int64(2), e.Seq())
	assert.Equal(t, chain.Time(100), e.Now())
}

func TestEngine_RecorderFailureRollsBack(t *testing.T) {
	e := newTestEngine(t, WithRecorder(failingRecorder{}))
	root := e.StateRoot()

	_, err := e.Apply(ctx(), Request{Module: "social", Action: "follow_user", Caller: "alice", Time: 1, Args: args("target", "bob")})
	require.Error(t, err)

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ErrCodeRecordFailed, engErr.Code)
	assert.ErrorContains(t, err, "disk full")

	assert.Equal(t, root, e.StateRoot())
	assert.Equal(t, int64(0), e.Seq())
	assert.Equal(t, chain.Time(0), e.Now())
	following := query(t, e, "social", "is_following", args("follower", "alice", "followed", "bob"))
	assert.Equal(t, ir.Bool(false), following)
}

func TestEngine_ObserverFailureIsIgnored(t *testing.T) {
	obs := &failingObserver{}
	e := newTestEngine(t, WithObserver(obs))

	r, err := e.Apply(ctx(), Request{Module: "social", Action: "follow_user", Caller: "alice", Time: 1, Args: args("target", "bob")})
	require.NoError(t, err)
	assert.True(t, r.Accepted())
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, int64(1), e.Seq())
}

func TestEngine_ReceiptsAreDeterministic(t *testing.T) {
	reqs := []Request{
		{Module: "poll", Action: "create_poll", Caller: "owner", Time: 10, Args: args("title", "t", "description", "d", "options", []string{"x"}, "duration_hours", 1)},
		{Module: "poll", Action: "vote", Caller: "alice", Time: 20, Args: args("poll_id", 1, "option_index", 0)},
		{Module: "poll", Action: "vote", Caller: "alice", Time: 30, Args: args("poll_id", 1, "option_index", 0)},
		{Module: "social", Action: "create_post", Caller: "bob", Time: 40, Args: args("content_hash", "h")},
		{Module: "community", Action: "block_user", Caller: "bob", Time: 50, Args: args("target", "carol")},
	}

	run := func() []ir.Receipt {
		e := newTestEngine(t)
		out := make([]ir.Receipt, 0, len(reqs))
		for _, req := range reqs {
			out = append(out, mustApply(t, e, req))
		}
		return out
	}

	first, second := run(), run()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "receipt %d", i)
		assert.Equal(t, first[i].StateRoot, second[i].StateRoot, "receipt %d", i)
	}
}

func TestEngine_ReceiptIDBindsContent(t *testing.T) {
	e := newTestEngine(t)
	r := mustApply(t, e, Request{Module: "social", Action: "follow_user", Caller: "alice", Time: 1, Args: args("target", "bob")})

	id, err := ir.ReceiptID(ir.Receipt{
		ActionID:  r.ActionID,
		Seq:       r.Seq,
		Outcome:   r.Outcome,
		Result:    r.Result,
		Events:    r.Events,
		StateRoot: r.StateRoot,
	})
	require.NoError(t, err)
	assert.Equal(t, r.ID, id)
}

func TestEngine_QueryDefaultsToLastTime(t *testing.T) {
	e := newTestEngine(t)
	mustApply(t, e, Request{
		Module: "poll", Action: "create_poll", Caller: "alice", Time: 1_000,
		Args: args("title", "t", "description", "", "options", []string{"a"}, "duration_hours", 1),
	})

	open := query(t, e, "poll", "get_poll_results", args("poll_id", 1)).(ir.Object)
	assert.Equal(t, ir.Bool(false), open["is_ended"])

	later, err := e.Query("poll", "get_poll_results", 1_000+3_600_001, args("poll_id", 1))
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), later.(ir.Object)["is_ended"])
}

func TestEngine_StateRootCommitmentIsIndependentOfStateSize(t *testing.T) {
	e := newTestEngine(t)
	mustApply(t, e, Request{
		Module: "poll", Action: "create_poll", Caller: "alice", Time: 1,
		Args: args("title", "t", "description", "", "options", []string{"a", "b"}, "duration_hours", 1000),
	})
	vote := func(i int) ir.Receipt {
		r := mustApply(t, e, Request{
			Module: "poll", Action: "vote", Caller: chain.AccountID(fmt.Sprintf("voter-%04d", i)),
			Time: chain.Time(2 + i), Args: args("poll_id", 1, "option_index", i%2),
		})
		require.True(t, r.Accepted(), r.Outcome)
		return r
	}

	for i := range 10 {
		vote(i)
	}
	small := len(ir.MustCanonical(e.Commitment()))

	roots := map[string]bool{}
	for i := 10; i < 3000; i++ {
		roots[vote(i).StateRoot] = true
	}
	assert.Len(t, roots, 2990, "every vote moves the root")

	// Only the len fields of votes and voters grow, by two digits each.
	assert.InDelta(t, small, len(ir.MustCanonical(e.Commitment())), 4)

	root, err := ir.StateRoot(e.Commitment())
	require.NoError(t, err)
	assert.Equal(t, e.StateRoot(), root)

	results := query(t, e, "poll", "get_poll_results", args("poll_id", 1)).(ir.Object)
	assert.Equal(t, ir.Int(3000), results["total_votes"])
}

func TestEngine_StateRootIgnoresHistoryOrder(t *testing.T) {
	follow := func(e *Engine, caller, target chain.AccountID, at chain.Time) {
		r := mustApply(t, e, Request{Module: "social", Action: "follow_user", Caller: caller, Time: at, Args: args("target", string(target))})
		require.True(t, r.Accepted(), r.Outcome)
	}

	a := newTestEngine(t)
	follow(a, "alice", "bob", 1)
	follow(a, "bob", "carol", 2)

	b := newTestEngine(t)
	follow(b, "bob", "carol", 1)
	follow(b, "alice", "bob", 2)

	assert.Equal(t, a.StateRoot(), b.StateRoot())
	assert.Empty(t, cmp.Diff(a.Snapshot(), b.Snapshot()))
}

func TestEngine_QueryAtTimeZero(t *testing.T) {
	e := newTestEngine(t)
	mustApply(t, e, Request{
		Module: "poll", Action: "create_poll", Caller: "alice", Time: 1_000,
		Args: args("title", "t", "description", "", "options", []string{"a"}, "duration_hours", 1),
	})
	mustApply(t, e, Request{Module: "social", Action: "follow_user", Caller: "alice", Time: 5_000_000, Args: args("target", "bob")})

	latest, err := e.QueryLatest("poll", "get_poll_results", args("poll_id", 1))
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), latest.(ir.Object)["is_ended"])

	atZero, err := e.Query("poll", "get_poll_results", 0, args("poll_id", 1))
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(false), atZero.(ir.Object)["is_ended"], "time zero is evaluated as given")
}

func TestEngine_QueryRejection(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.QueryLatest("poll", "get_poll_results", args("poll_id", 9))
	require.Error(t, err)
	assert.Equal(t, chain.CodePollNotFound, chain.CodeOf(err))
	assert.False(t, IsUnknown(err))
}

func TestNew_InvalidGenesis(t *testing.T) {
	_, err := New(Genesis{})
	assert.ErrorContains(t, err, "owner")
}
