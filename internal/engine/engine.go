package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/community"
	"github.com/roach88/ledgerd/internal/escrow"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/kv"
	"github.com/roach88/ledgerd/internal/poll"
	"github.com/roach88/ledgerd/internal/social"
)

// BatchGenerator generates batch tokens for actions submitted without one.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type BatchGenerator interface {
	Generate() string
}

// Recorder durably appends an action and its receipt to the log. It runs
// before the action commits; a failure rolls the action back.
type Recorder interface {
	Record(ctx context.Context, action ir.Action, receipt ir.Receipt) error
}

// Observer is notified after an action has entered the log. Observer
// failures are logged and never affect state.
type Observer interface {
	Observe(ctx context.Context, action ir.Action, receipt ir.Receipt) error
}

// Request is one action as delivered by the host.
type Request struct {
	// Batch correlates actions submitted together. Empty means generate.
	Batch  string
	Module string
	Action string
	Caller chain.AccountID
	Time   chain.Time
	Args   ir.Object
}

// Engine is the single-writer ledger state machine.
//
// The engine owns every module's state and the journal behind it. Apply
// runs one action as an all-or-nothing unit: the handling module validates
// and mutates, then the engine either commits the journal and stamps a
// receipt, or rolls back to the exact prior state.
//
// Thread-safety model:
//   - Apply, Query, QueryLatest, Snapshot, Commitment, StateRoot: single goroutine only
//   - Submit: safe from any goroutine, processed by the Run loop
//   - Run: must be called from exactly one goroutine, which then owns Apply
//
// INVARIANTS:
//   - seq increases by exactly one for every action that enters the log
//   - a rejected action leaves the state root unchanged
//   - action time never decreases across the log
type Engine struct {
	genesis  Genesis
	journal  *kv.Journal
	modules  map[string]chain.Module
	order    []string
	ledger   *escrow.Ledger
	clock    *Clock
	lastTime chain.Time
	root     string

	queue     *submitQueue
	batchGen  BatchGenerator
	recorders []Recorder
	observers []Observer
	logger    *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithBatchGenerator sets the generator for unbatched requests.
//
// Default: UUIDv7Generator.
// Use NewFixedGenerator for deterministic tests.
func WithBatchGenerator(gen BatchGenerator) Option {
	return func(e *Engine) {
		e.batchGen = gen
	}
}

// WithRecorder adds a durable recorder, typically the SQLite store.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorders = append(e.recorders, r)
	}
}

// WithObserver adds a post-commit observer, typically an event publisher.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New builds an engine at genesis: modules are wired to one journal and
// endowments are credited outside any action.
func New(g Genesis, opts ...Option) (*Engine, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	j := kv.NewJournal()
	ledger := escrow.New(j)

	communityParams := g.Community
	communityParams.Moderators = g.Moderators()

	e := &Engine{
		genesis:  g,
		journal:  j,
		modules:  make(map[string]chain.Module),
		ledger:   ledger,
		clock:    NewClock(),
		queue:    newSubmitQueue(),
		batchGen: UUIDv7Generator{},
		logger:   slog.Default(),
	}
	e.register(ledger)
	e.register(poll.New(j, poll.Params{Owner: g.Owner, TimeUnitsPerHour: g.TimeUnitsPerHour}))
	e.register(social.New(j, ledger, g.Social))
	e.register(community.New(j, ledger, communityParams))

	for _, opt := range opts {
		opt(e)
	}

	accounts := make([]chain.AccountID, 0, len(g.Endowments))
	for acct := range g.Endowments {
		accounts = append(accounts, acct)
	}
	slices.Sort(accounts)
	for _, acct := range accounts {
		ledger.MintAndCredit(acct, g.Endowments[acct])
	}

	root, err := e.computeRoot()
	if err != nil {
		return nil, fmt.Errorf("genesis state root: %w", err)
	}
	e.root = root
	return e, nil
}

func (e *Engine) register(m chain.Module) {
	e.modules[m.Name()] = m
	e.order = append(e.order, m.Name())
	slices.Sort(e.order)
}

// Genesis returns the configuration the engine was built from.
func (e *Engine) Genesis() Genesis {
	return e.genesis
}

// Modules returns the registered module names in sorted order.
func (e *Engine) Modules() []string {
	return slices.Clone(e.order)
}

// Seq returns the seq of the last action in the log.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// Now returns the time of the last action in the log.
func (e *Engine) Now() chain.Time {
	return e.lastTime
}

// StateRoot returns the root of the current committed state.
func (e *Engine) StateRoot() string {
	return e.root
}

// Snapshot renders the complete state, keyed by module name.
func (e *Engine) Snapshot() ir.Object {
	snap := make(ir.Object, len(e.order))
	for _, name := range e.order {
		snap[name] = e.modules[name].Snapshot()
	}
	return snap
}

// Commitment is what the state root hashes: each module's Digest, keyed by
// module name. Its size depends on the number of containers, not on how
// much they hold.
func (e *Engine) Commitment() ir.Object {
	c := make(ir.Object, len(e.order))
	for _, name := range e.order {
		c[name] = e.modules[name].Digest()
	}
	return c
}

func (e *Engine) computeRoot() (string, error) {
	return ir.StateRoot(e.Commitment())
}

// QueryLatest runs a query at the time of the last action.
func (e *Engine) QueryLatest(module, query string, args ir.Object) (ir.Value, error) {
	return e.Query(module, query, e.lastTime, args)
}

// Query runs a read-only query against a module at logical time now.
// Zero is a valid time.
func (e *Engine) Query(module, query string, now chain.Time, args ir.Object) (ir.Value, error) {
	mod, ok := e.modules[module]
	if !ok {
		return nil, &Error{
			Code:    ErrCodeUnknownModule,
			Message: fmt.Sprintf("no module %q", module),
			Module:  module,
			Action:  query,
		}
	}
	if args == nil {
		args = ir.Object{}
	}
	v, err := mod.Query(now, query, args)
	if err != nil {
		return nil, e.classify(module, query, err)
	}
	return v, nil
}

// Apply runs one action to completion.
//
// A module rejection is a normal outcome: the action enters the log with
// the rejection code as its outcome and the state is untouched. Apply
// returns an error only when the action could not enter the log at all
// (unknown module or action, time regression, recorder failure); in that
// case seq is not consumed.
func (e *Engine) Apply(ctx context.Context, req Request) (ir.Receipt, error) {
	mod, ok := e.modules[req.Module]
	if !ok {
		return ir.Receipt{}, &Error{
			Code:    ErrCodeUnknownModule,
			Message: fmt.Sprintf("no module %q", req.Module),
			Module:  req.Module,
			Action:  req.Action,
		}
	}
	if req.Time < e.lastTime {
		return ir.Receipt{}, &Error{
			Code:    ErrCodeTimeRegression,
			Message: fmt.Sprintf("time %d precedes last applied time %d", req.Time, e.lastTime),
			Module:  req.Module,
			Action:  req.Action,
		}
	}
	if req.Args == nil {
		req.Args = ir.Object{}
	}
	if req.Batch == "" {
		req.Batch = e.batchGen.Generate()
	}

	if err := e.journal.Begin(); err != nil {
		return ir.Receipt{}, fmt.Errorf("begin %s.%s: %w", req.Module, req.Action, err)
	}

	cctx := chain.NewCtx(req.Module, chain.Call{Caller: req.Caller, Time: req.Time})
	result, applyErr := mod.Apply(cctx, req.Action, req.Args)

	var (
		outcome = ir.OutcomeSuccess
		events  = cctx.Events()
		root    = e.root
	)
	if applyErr != nil {
		e.rollback()
		rej, isRejection := chain.AsRejection(applyErr)
		if !isRejection {
			return ir.Receipt{}, e.classify(req.Module, req.Action, applyErr)
		}
		outcome = string(rej.Code)
		result = ir.Obj(ir.O("message", ir.String(rej.Message)))
		events = nil
	} else {
		if result == nil {
			result = ir.Object{}
		}
		next, err := e.computeRoot()
		if err != nil {
			e.rollback()
			return ir.Receipt{}, fmt.Errorf("state root after %s.%s: %w", req.Module, req.Action, err)
		}
		root = next
	}

	action, receipt, err := e.stamp(req, outcome, result, events, root)
	if err != nil {
		e.rollbackIfActive()
		return ir.Receipt{}, err
	}

	for _, r := range e.recorders {
		if err := r.Record(ctx, action, receipt); err != nil {
			e.rollbackIfActive()
			return ir.Receipt{}, &Error{
				Code:    ErrCodeRecordFailed,
				Message: fmt.Sprintf("record seq %d", action.Seq),
				Module:  req.Module,
				Action:  req.Action,
				Err:     err,
			}
		}
	}

	if e.journal.Active() {
		if err := e.journal.Commit(); err != nil {
			return ir.Receipt{}, fmt.Errorf("commit %s.%s: %w", req.Module, req.Action, err)
		}
	}
	e.clock.Next()
	e.lastTime = req.Time
	e.root = root

	if receipt.Accepted() {
		e.logger.Debug("action applied",
			"seq", receipt.Seq,
			"module", req.Module,
			"action", req.Action,
			"events", len(receipt.Events),
		)
	} else {
		e.logger.Debug("action rejected",
			"seq", receipt.Seq,
			"module", req.Module,
			"action", req.Action,
			"code", receipt.Outcome,
		)
	}

	for _, o := range e.observers {
		if err := o.Observe(ctx, action, receipt); err != nil {
			e.logger.Warn("observer failed",
				"seq", receipt.Seq,
				"action_id", action.ID,
				"error", err,
			)
		}
	}

	return receipt, nil
}

// stamp builds the content-addressed action and receipt for the next seq.
func (e *Engine) stamp(req Request, outcome string, result ir.Object, events []ir.Event, root string) (ir.Action, ir.Receipt, error) {
	seq := e.clock.Peek()
	action := ir.Action{
		Batch:         req.Batch,
		Module:        req.Module,
		Name:          req.Action,
		Caller:        string(req.Caller),
		Time:          uint64(req.Time),
		Args:          req.Args,
		Seq:           seq,
		EngineVersion: ir.EngineVersion,
	}
	id, err := ir.ActionID(action)
	if err != nil {
		return ir.Action{}, ir.Receipt{}, fmt.Errorf("action id at seq %d: %w", seq, err)
	}
	action.ID = id

	receipt := ir.Receipt{
		ActionID:  id,
		Seq:       seq,
		Outcome:   outcome,
		Result:    result,
		Events:    events,
		StateRoot: root,
	}
	rid, err := ir.ReceiptID(receipt)
	if err != nil {
		return ir.Action{}, ir.Receipt{}, fmt.Errorf("receipt id at seq %d: %w", seq, err)
	}
	receipt.ID = rid
	return action, receipt, nil
}

func (e *Engine) rollback() {
	if err := e.journal.Rollback(); err != nil {
		// Only reachable if a module committed the journal itself.
		panic(fmt.Sprintf("engine: rollback: %v", err))
	}
}

func (e *Engine) rollbackIfActive() {
	if e.journal.Active() {
		e.rollback()
	}
}

// classify converts a module's non-rejection error into an engine error.
func (e *Engine) classify(module, name string, err error) error {
	var unknown *chain.UnknownError
	if errors.As(err, &unknown) {
		return &Error{
			Code:    ErrCodeUnknownAction,
			Message: unknown.Error(),
			Module:  module,
			Action:  name,
			Err:     err,
		}
	}
	return fmt.Errorf("%s.%s: %w", module, name, err)
}
