package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/config"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/store"
	"github.com/roach88/ledgerd/internal/testutil"
)

// DefaultOwner owns the stock genesis used when a scenario has none.
const DefaultOwner = "owner"

// Harness is the scenario execution context.
// It runs scenarios with a deterministic clock and batch token.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	genesis engine.Genesis
	clock   *testutil.LogicalClock
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh engine recording into a fresh
// in-memory database.
//
// Execution flow:
// 1. Build the genesis and pin it in the store
// 2. Apply every step, checking expect clauses
// 3. Evaluate assertions
// 4. Replay the stored log on a second engine and compare state roots
//
// An error is returned only when the scenario could not run at all
// (bad genesis, unknown module, time regression). Rejections are outcomes.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	g, err := scenarioGenesis(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	hash, err := g.Hash()
	if err != nil {
		return nil, err
	}
	if err := st.PinGenesis(ctx, hash); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // suppress logs in tests
	eng, err := engine.New(g,
		engine.WithRecorder(st),
		engine.WithBatchGenerator(testutil.NewFixedBatchGenerator(scenario.Batch)),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:   st,
		engine:  eng,
		genesis: g,
		clock:   testutil.NewLogicalClock(0),
		logger:  logger,
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, &AssertionContext{Engine: eng}) {
		result.AddError(msg)
	}

	result.StateRoot = eng.StateRoot()
	if err := h.verifyReplay(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func scenarioGenesis(s *Scenario) (engine.Genesis, error) {
	if s.Genesis == "" {
		return engine.DefaultGenesis(DefaultOwner), nil
	}
	g, err := config.ParseGenesis(s.Name+".genesis.cue", []byte(s.Genesis))
	if err != nil {
		return engine.Genesis{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return g, nil
}

// executeSteps applies every step through the engine and validates expect
// clauses against the receipts it actually produced.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		module, name, _ := splitAction(step.Action)

		args, err := ir.ObjectFromGo(step.Args)
		if err != nil {
			return fmt.Errorf("step %d (%s): failed to convert args: %w", i, step.Action, err)
		}

		if step.Time != nil {
			h.clock.Set(chain.Time(*step.Time))
		}
		now := h.clock.Advance(chain.Time(step.Advance))

		receipt, err := h.engine.Apply(ctx, engine.Request{
			Module: module,
			Action: name,
			Caller: chain.AccountID(step.Caller),
			Time:   now,
			Args:   args,
		})
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}

		entry, err := h.store.ReadEntry(ctx, receipt.Seq)
		if err != nil {
			return fmt.Errorf("step %d (%s): read back: %w", i, step.Action, err)
		}
		event := traceEvent(entry.Action, entry.Receipt)
		result.Trace = append(result.Trace, event)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, event) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Action, msg))
			}
		}

		h.logger.Debug("step applied",
			"step", i,
			"action", step.Action,
			"seq", receipt.Seq,
			"outcome", receipt.Outcome,
		)
	}
	return nil
}

func checkExpect(expect *ExpectClause, event TraceEvent) []string {
	var errs []string
	if event.Outcome != expect.Outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s (result %s)",
			expect.Outcome, event.Outcome, ir.MustCanonical(event.Result)))
	}
	if expect.Result != nil && !matchValue(event.Result, expect.Result) {
		errs = append(errs, fmt.Sprintf("result %s does not match %v",
			ir.MustCanonical(event.Result), expect.Result))
	}
	if expect.Events != nil {
		names := make([]string, len(event.Events))
		for i, e := range event.Events {
			names[i] = e.Name
		}
		if !slices.Equal(names, expect.Events) {
			errs = append(errs, fmt.Sprintf("expected events %v, got %v", expect.Events, names))
		}
	}
	return errs
}

// verifyReplay rebuilds state from the stored log and requires the same
// state root, then runs the store's structural log check.
func (h *Harness) verifyReplay(ctx context.Context, result *Result) error {
	log, err := h.store.ReadLog(ctx)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	replica, err := engine.Replay(ctx, h.genesis, log, engine.WithLogger(h.logger))
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
		return nil
	}
	if replica.StateRoot() != result.StateRoot {
		result.AddError(fmt.Sprintf("replay: state root %s, live engine %s", replica.StateRoot(), result.StateRoot))
	}

	genesis, err := engine.New(h.genesis, engine.WithLogger(h.logger))
	if err != nil {
		return err
	}
	issues, err := h.store.CheckLog(ctx, genesis.StateRoot())
	if err != nil {
		return fmt.Errorf("check log: %w", err)
	}
	for _, issue := range issues {
		result.AddError("log: " + issue.String())
	}
	return nil
}
