package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

type fakeStream struct {
	adds []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	f.adds = append(f.adds, a)
	return redis.NewStringResult("1-0", nil)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sample() (ir.Action, ir.Receipt) {
	action := ir.Action{
		ID:     "act",
		Batch:  "b",
		Module: "social",
		Name:   "like_post",
		Caller: "bob",
		Time:   20,
		Seq:    2,
	}
	receipt := ir.Receipt{
		ID:       "rcpt",
		ActionID: "act",
		Seq:      2,
		Outcome:  ir.OutcomeSuccess,
		Events: []ir.Event{
			{Module: "social", Name: "PostLiked", Fields: ir.Obj(ir.O("post_id", ir.Uint(0)), ir.O("liker", ir.String("bob")))},
			{Module: "social", Name: "RewardDistributed", Fields: ir.Obj(ir.O("recipient", ir.String("alice")), ir.O("amount", ir.Uint(1)))},
		},
		StateRoot: "root",
	}
	return action, receipt
}

func TestObserve_EventsThenReceipt(t *testing.T) {
	f := &fakeStream{}
	p := New(f, "ledgerd:events", quiet())

	action, receipt := sample()
	require.NoError(t, p.Observe(context.Background(), action, receipt))

	require.Len(t, f.adds, 3)
	for _, a := range f.adds {
		assert.Equal(t, "ledgerd:events", a.Stream)
		assert.Zero(t, a.MaxLen)
	}

	first := f.adds[0].Values.(map[string]any)
	assert.Equal(t, KindEvent, first["kind"])
	assert.Equal(t, "PostLiked", first["name"])
	assert.Equal(t, "0", first["idx"])
	assert.Equal(t, `{"liker":"bob","post_id":0}`, first["fields"])

	last := f.adds[2].Values.(map[string]any)
	assert.Equal(t, KindReceipt, last["kind"])
	assert.Equal(t, "2", last["seq"])
	assert.Equal(t, "rcpt", last["receipt_id"])
	assert.Equal(t, "Success", last["outcome"])
	assert.Equal(t, "20", last["time"])
	assert.Equal(t, `{}`, last["result"])
}

func TestObserve_RejectionPublishesReceiptOnly(t *testing.T) {
	f := &fakeStream{}
	p := New(f, "s", quiet())

	action, receipt := sample()
	receipt.Outcome = "AlreadyLiked"
	receipt.Events = nil
	receipt.Result = ir.Obj(ir.O("message", ir.String("already liked")))
	require.NoError(t, p.Observe(context.Background(), action, receipt))

	require.Len(t, f.adds, 1)
	values := f.adds[0].Values.(map[string]any)
	assert.Equal(t, "AlreadyLiked", values["outcome"])
	assert.Equal(t, `{"message":"already liked"}`, values["result"])
}

func TestObserve_MaxLen(t *testing.T) {
	f := &fakeStream{}
	p := New(f, "s", WithMaxLen(1000), quiet())

	action, receipt := sample()
	require.NoError(t, p.Observe(context.Background(), action, receipt))
	for _, a := range f.adds {
		assert.Equal(t, int64(1000), a.MaxLen)
		assert.True(t, a.Approx)
	}
}

func TestObserve_Error(t *testing.T) {
	f := &fakeStream{err: errors.New("connection refused")}
	p := New(f, "s", quiet())

	action, receipt := sample()
	err := p.Observe(context.Background(), action, receipt)
	assert.ErrorContains(t, err, "publish seq 2 event 0")
	assert.ErrorContains(t, err, "connection refused")
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
