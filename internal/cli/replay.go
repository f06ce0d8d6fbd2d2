package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Replicas int
}

// ReplicaResult is the outcome of one independent replay.
type ReplicaResult struct {
	Replica   int    `json:"replica"`
	StateRoot string `json:"state_root,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Entries       int             `json:"entries"`
	HeadRoot      string          `json:"head_root"`
	Issues        []string        `json:"issues"`
	Replicas      []ReplicaResult `json:"replicas"`
	Deterministic bool            `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the log and verify determinism",
		Long: `Verify the action log without modifying it.

The log is first checked structurally: contiguous seqs, non-decreasing
time, content-addressed ids, and rejected actions that leave the state
root unchanged. Then --replicas independent engines replay the log from
genesis in parallel; every one must reproduce every receipt and end on the
state root recorded at the head of the log.

Exit codes:
  0 - Log verified deterministic
  1 - Verification failed
  2 - Command error (database not found, genesis mismatch)

Examples:
  ledgerd replay --db ./ledgerd.db
  ledgerd replay --replicas 4 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Replicas, "replicas", 2, "number of independent replays")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	if opts.Replicas < 1 {
		return NewExitError(ExitCommandError, "--replicas must be at least 1")
	}
	ctx := cmd.Context()
	logger := opts.Logger()

	env, err := opts.resolveEnv()
	if err != nil {
		return err
	}
	g, err := loadGenesis(env.Genesis)
	if err != nil {
		return err
	}
	st, err := store.OpenWithDriver(env.Driver, env.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := checkPinned(ctx, st, g); err != nil {
		return err
	}

	log, err := st.ReadLog(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}
	head, err := st.ReadHead(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read head", err)
	}

	genesis, err := engine.New(g, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build genesis state", err)
	}
	if head.Seq == 0 {
		head.StateRoot = genesis.StateRoot()
	}

	result := ReplayResult{
		Entries:  len(log),
		HeadRoot: head.StateRoot,
		Issues:   []string{},
		Replicas: make([]ReplicaResult, opts.Replicas),
	}

	issues, err := st.CheckLog(ctx, genesis.StateRoot())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to check log", err)
	}
	for _, issue := range issues {
		result.Issues = append(result.Issues, issue.String())
	}

	// Each replica writes only its own slot.
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range result.Replicas {
		eg.Go(func() error {
			result.Replicas[i] = replayReplica(egCtx, i, g, log)
			logger.Debug("replica finished", "replica", i, "state_root", result.Replicas[i].StateRoot)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "replay interrupted", err)
	}
	if err := ctx.Err(); err != nil {
		return WrapExitError(ExitCommandError, "replay interrupted", err)
	}

	result.Deterministic = len(result.Issues) == 0
	for _, r := range result.Replicas {
		if r.Error != "" || r.StateRoot != head.StateRoot {
			result.Deterministic = false
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	text := func(w io.Writer) { writeReplayText(w, result) }
	if !result.Deterministic {
		return out.Failure("E_REPLAY", "determinism verification failed", result, text)
	}
	return out.Success(result, text)
}

// replayReplica rebuilds state from genesis on a fresh engine.
func replayReplica(ctx context.Context, i int, g engine.Genesis, log []ir.LogEntry) ReplicaResult {
	eng, err := engine.Replay(ctx, g, log)
	if err != nil {
		return ReplicaResult{Replica: i, Error: err.Error()}
	}
	return ReplicaResult{Replica: i, StateRoot: eng.StateRoot()}
}

// checkPinned compares the genesis with the one pinned in the database,
// without pinning anything.
func checkPinned(ctx context.Context, st *store.Store, g engine.Genesis) error {
	pinned, err := st.GenesisHash(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read genesis hash", err)
	}
	hash, err := g.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash genesis", err)
	}
	if pinned != "" && pinned != hash {
		return WrapExitError(ExitCommandError, "genesis does not match database",
			fmt.Errorf("%w: pinned %s, got %s", store.ErrGenesisMismatch, pinned, hash))
	}
	return nil
}

func writeReplayText(w io.Writer, result ReplayResult) {
	fmt.Fprintf(w, "Replay Summary: %d entries\n", result.Entries)
	fmt.Fprintf(w, "  Head root: %s\n", result.HeadRoot)

	for _, issue := range result.Issues {
		fmt.Fprintf(w, "✗ %s\n", issue)
	}
	for _, r := range result.Replicas {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "✗ replica %d: %s\n", r.Replica, r.Error)
		case r.StateRoot != result.HeadRoot:
			fmt.Fprintf(w, "✗ replica %d: state root %s\n", r.Replica, r.StateRoot)
		default:
			fmt.Fprintf(w, "✓ replica %d\n", r.Replica)
		}
	}

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Log verified deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
