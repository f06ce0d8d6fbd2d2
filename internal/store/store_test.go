package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

var drivers = []string{DriverCGO, DriverPureGo}

func createTestStore(t *testing.T, driver string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenWithDriver(driver, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testGenesis() engine.Genesis {
	g := engine.DefaultGenesis("owner")
	g.Endowments = map[chain.AccountID]uint64{"alice": 500, "bob": 500}
	return g
}

func obj(t *testing.T, m map[string]any) ir.Object {
	t.Helper()
	o, err := ir.ObjectFromGo(m)
	require.NoError(t, err)
	return o
}

// recordSample runs a short mixed scenario through an engine recording
// into s and returns the engine.
func recordSample(t *testing.T, s *Store) *engine.Engine {
	t.Helper()
	e, err := engine.New(testGenesis(),
		engine.WithRecorder(s),
		engine.WithBatchGenerator(engine.NewFixedGenerator("b1", "b1", "b2", "b2", "b3")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	reqs := []engine.Request{
		{Module: "social", Action: "create_post", Caller: "alice", Time: 10, Args: obj(t, map[string]any{"content_hash": "h <&>"})},
		{Module: "social", Action: "like_post", Caller: "bob", Time: 20, Args: obj(t, map[string]any{"post_id": 0})},
		{Module: "social", Action: "like_post", Caller: "bob", Time: 30, Args: obj(t, map[string]any{"post_id": 0})},
		{Module: "community", Action: "block_user", Caller: "bob", Time: 40, Args: obj(t, map[string]any{"target": "alice"})},
		{Module: "poll", Action: "create_poll", Caller: "alice", Time: 50, Args: obj(t, map[string]any{
			"title": "t", "description": "", "options": []string{"x", "y"}, "duration_hours": uint64(1 << 62),
		})},
	}
	for _, req := range reqs {
		_, err := e.Apply(context.Background(), req)
		require.NoError(t, err)
	}
	return e
}

func TestOpen_Pragmas(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s := createTestStore(t, driver)
			assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
			assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
			assert.NoError(t, s.verifyPragma("user_version", "1"))
		})
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := OpenWithDriver("postgres", "x")
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestPinGenesis(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverCGO)

	hash, err := s.GenesisHash(ctx)
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, s.PinGenesis(ctx, "aaa"))
	require.NoError(t, s.PinGenesis(ctx, "aaa"), "same hash is fine")

	err = s.PinGenesis(ctx, "bbb")
	assert.ErrorIs(t, err, ErrGenesisMismatch)

	hash, err = s.GenesisHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aaa", hash)
}

func TestRecord_RoundTrip(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := createTestStore(t, driver)
			e := recordSample(t, s)

			log, err := s.ReadLog(ctx)
			require.NoError(t, err)
			require.Len(t, log, 5)

			for i, entry := range log {
				assert.Equal(t, int64(i+1), entry.Action.Seq)
				assert.Equal(t, ir.MustActionID(entry.Action), entry.Action.ID, "action id recomputes")
				id, err := ir.ReceiptID(entry.Receipt)
				require.NoError(t, err)
				assert.Equal(t, entry.Receipt.ID, id, "receipt id recomputes at seq %d", entry.Action.Seq)
			}

			assert.Equal(t, "b1", log[0].Action.Batch)
			assert.Len(t, log[0].Receipt.Events, 2)
			assert.Equal(t, string(chain.CodeAlreadyLiked), log[2].Receipt.Outcome)
			assert.Empty(t, log[2].Receipt.Events)

			head, err := s.ReadHead(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(5), head.Seq)
			assert.Equal(t, uint64(50), head.Time)
			assert.Equal(t, e.StateRoot(), head.StateRoot)
		})
	}
}

func TestRecord_ReplayFromStore(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverPureGo)
	orig := recordSample(t, s)

	log, err := s.ReadLog(ctx)
	require.NoError(t, err)

	replayed, err := engine.Replay(ctx, testGenesis(), log)
	require.NoError(t, err)
	assert.Equal(t, orig.StateRoot(), replayed.StateRoot())
}

func TestRecord_RejectsDuplicateSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverCGO)
	recordSample(t, s)

	entry, err := s.ReadEntry(ctx, 1)
	require.NoError(t, err)

	err = s.Record(ctx, entry.Action, entry.Receipt)
	assert.Error(t, err)

	log, err := s.ReadLog(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 5, "failed write leaves no partial rows")
}

func TestRecord_MismatchedReceipt(t *testing.T) {
	s := createTestStore(t, DriverCGO)
	err := s.Record(context.Background(),
		ir.Action{ID: "a", Seq: 1},
		ir.Receipt{ActionID: "other", Seq: 1})
	assert.ErrorContains(t, err, "does not belong")
}

func TestReadEntry_NotFound(t *testing.T) {
	s := createTestStore(t, DriverCGO)
	_, err := s.ReadEntry(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadBatch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverCGO)
	recordSample(t, s)

	batch, err := s.ReadBatch(ctx, "b2")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(3), batch[0].Action.Seq)
	assert.Equal(t, int64(4), batch[1].Action.Seq)
	require.Len(t, batch[1].Receipt.Events, 1)
	assert.Equal(t, "UserBlocked", batch[1].Receipt.Events[0].Name)

	none, err := s.ReadBatch(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadRange(t *testing.T) {
	s := createTestStore(t, DriverCGO)
	recordSample(t, s)

	entries, err := s.ReadRange(context.Background(), 2, 3)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Receipt.Events, 2, "PostLiked and RewardDistributed")
}

func TestReadEvents(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverCGO)
	recordSample(t, s)

	rewards, err := s.ReadEvents(ctx, "social", "RewardDistributed")
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, int64(1), rewards[0].Seq)
	assert.Equal(t, 1, rewards[0].Index)
	assert.Equal(t, ir.String("alice"), rewards[1].Event.Fields["recipient"])

	all, err := s.ReadEvents(ctx, "social", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestReadHead_Empty(t *testing.T) {
	s := createTestStore(t, DriverCGO)
	head, err := s.ReadHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Head{}, head)
}

func TestCheckLog(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverCGO)
	e, err := engine.New(testGenesis())
	require.NoError(t, err)
	genesisRoot := e.StateRoot()

	recordSample(t, s)

	issues, err := s.CheckLog(ctx, genesisRoot)
	require.NoError(t, err)
	assert.Empty(t, issues)

	issues, err = s.CheckLog(ctx, "wrong-root")
	require.NoError(t, err)
	assert.Empty(t, issues, "genesis root only matters if seq 1 is rejected")
}

func TestCheckEntries_Defects(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, DriverCGO)
	recordSample(t, s)
	log, err := s.ReadLog(ctx)
	require.NoError(t, err)

	// A rejected receipt that claims a new root and events.
	bad := log[2]
	bad.Receipt.StateRoot = "forged"
	bad.Receipt.Events = []ir.Event{{Module: "social", Name: "PostLiked"}}
	log[2] = bad
	log[3].Action.Time = 1

	issues := checkEntries(log, "")
	msgs := make([]string, len(issues))
	for i, is := range issues {
		msgs[i] = is.String()
	}
	assert.Contains(t, msgs, "seq 3: receipt id does not match content")
	assert.Contains(t, msgs, "seq 3: rejected action has events")
	assert.Contains(t, msgs, "seq 3: rejected action changed the state root")
	assert.Contains(t, msgs, "seq 4: time 1 before 30")
	assert.Contains(t, msgs, "seq 4: action id does not match content")
}
