// Package publish streams committed receipts and events to Redis.
//
// Each action that enters the log produces one stream entry per emitted
// event followed by one receipt entry. Entries carry the seq, so
// consumers can resume from any position and detect gaps.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/ledgerd/internal/ir"
)

// Entry kinds.
const (
	KindEvent   = "event"
	KindReceipt = "receipt"
)

// StreamAdder is the slice of a Redis client the publisher needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends log entries to a Redis stream. It implements
// engine.Observer.
type Publisher struct {
	client StreamAdder
	stream string
	maxLen int64
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMaxLen caps the stream at approximately n entries (XADD MAXLEN ~).
func WithMaxLen(n int64) Option {
	return func(p *Publisher) {
		p.maxLen = n
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// New creates a publisher writing to stream through client.
func New(client StreamAdder, stream string, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		stream: stream,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to Redis at addr and verifies the connection. The returned
// client must be closed by the caller.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Observe publishes the events and receipt of one logged action.
func (p *Publisher) Observe(ctx context.Context, action ir.Action, receipt ir.Receipt) error {
	for i, ev := range receipt.Events {
		values, err := eventValues(action, receipt, i, ev)
		if err != nil {
			return err
		}
		if err := p.add(ctx, values); err != nil {
			return fmt.Errorf("publish seq %d event %d: %w", receipt.Seq, i, err)
		}
	}

	values, err := receiptValues(action, receipt)
	if err != nil {
		return err
	}
	if err := p.add(ctx, values); err != nil {
		return fmt.Errorf("publish seq %d receipt: %w", receipt.Seq, err)
	}

	p.logger.Debug("published",
		"seq", receipt.Seq,
		"stream", p.stream,
		"events", len(receipt.Events),
	)
	return nil
}

func (p *Publisher) add(ctx context.Context, values map[string]any) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}

func eventValues(action ir.Action, receipt ir.Receipt, idx int, ev ir.Event) (map[string]any, error) {
	fields := ev.Fields
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal event fields at seq %d: %w", receipt.Seq, err)
	}
	return map[string]any{
		"kind":      KindEvent,
		"seq":       strconv.FormatInt(receipt.Seq, 10),
		"idx":       strconv.Itoa(idx),
		"batch":     action.Batch,
		"action_id": action.ID,
		"module":    ev.Module,
		"name":      ev.Name,
		"fields":    string(data),
	}, nil
}

func receiptValues(action ir.Action, receipt ir.Receipt) (map[string]any, error) {
	result := receipt.Result
	if result == nil {
		result = ir.Object{}
	}
	data, err := ir.MarshalCanonical(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result at seq %d: %w", receipt.Seq, err)
	}
	return map[string]any{
		"kind":       KindReceipt,
		"seq":        strconv.FormatInt(receipt.Seq, 10),
		"batch":      action.Batch,
		"action_id":  action.ID,
		"receipt_id": receipt.ID,
		"module":     action.Module,
		"name":       action.Name,
		"caller":     action.Caller,
		"time":       strconv.FormatUint(action.Time, 10),
		"outcome":    receipt.Outcome,
		"result":     string(data),
		"state_root": receipt.StateRoot,
	}, nil
}
