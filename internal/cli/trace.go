package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Batch string
	Seq   int64
	From  int64
	To    int64
}

// TraceResult holds the trace output.
type TraceResult struct {
	Batch   string        `json:"batch,omitempty"`
	Entries []ir.LogEntry `json:"entries"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show logged actions and their receipts",
		Long: `Print log entries: each action with its outcome, result and events.

Select entries with exactly one of:
  --batch   every action submitted under a batch token
  --seq     a single log position
  --from/--to   an inclusive seq range (--to defaults to the head)

With no selector the whole log is printed.

Examples:
  ledgerd trace --batch import-1
  ledgerd trace --seq 42 -v
  ledgerd trace --from 100 --to 120 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "batch token to trace")
	cmd.Flags().Int64Var(&opts.Seq, "seq", 0, "single log position")
	cmd.Flags().Int64Var(&opts.From, "from", 1, "first seq of the range")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last seq of the range (default: head)")
	cmd.MarkFlagsMutuallyExclusive("batch", "seq", "from")
	cmd.MarkFlagsMutuallyExclusive("batch", "seq", "to")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	result := TraceResult{Batch: opts.Batch}
	switch {
	case opts.Batch != "":
		result.Entries, err = st.ReadBatch(ctx, opts.Batch)
	case opts.Seq > 0:
		var entry ir.LogEntry
		entry, err = st.ReadEntry(ctx, opts.Seq)
		if err == nil {
			result.Entries = []ir.LogEntry{entry}
		}
	default:
		to := opts.To
		if to == 0 {
			head, herr := st.ReadHead(ctx)
			if herr != nil {
				return WrapExitError(ExitCommandError, "failed to read head", herr)
			}
			to = head.Seq
		}
		result.Entries, err = st.ReadRange(ctx, opts.From, to)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read log", err)
	}
	if result.Entries == nil {
		result.Entries = []ir.LogEntry{}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) {
		if len(result.Entries) == 0 {
			fmt.Fprintln(w, "No entries")
			return
		}
		for _, e := range result.Entries {
			writeEntry(w, e.Action, e.Receipt, opts.Verbose)
		}
	})
}

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Module string
	Name   string
}

// EventRow is one emitted event with its log position.
type EventRow struct {
	Seq    int64     `json:"seq"`
	Index  int       `json:"index"`
	Module string    `json:"module"`
	Name   string    `json:"name"`
	Fields ir.Object `json:"fields"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List emitted events",
		Long: `List events emitted by accepted actions, in log order.

Examples:
  ledgerd events --module social
  ledgerd events --module social --name RewardDistributed --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "module that emitted the events (required)")
	_ = cmd.MarkFlagRequired("module")
	cmd.Flags().StringVar(&opts.Name, "name", "", "event name (default: all)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ReadEvents(ctx, opts.Module, opts.Name)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read events", err)
	}
	rows := make([]EventRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, EventRow{
			Seq:    r.Seq,
			Index:  r.Index,
			Module: r.Event.Module,
			Name:   r.Event.Name,
			Fields: r.Event.ToObject()["fields"].(ir.Object),
		})
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(rows, func(w io.Writer) {
		for _, r := range rows {
			fmt.Fprintf(w, "[%d.%d] %s.%s %s\n", r.Seq, r.Index, r.Module, r.Name, ir.MustCanonical(r.Fields))
		}
		fmt.Fprintf(w, "%d event(s)\n", len(rows))
	})
}

// openStore opens the database for reading after checking it belongs to
// the configured genesis. The log is not replayed.
func openStore(ctx context.Context, opts *RootOptions) (*store.Store, error) {
	env, err := opts.resolveEnv()
	if err != nil {
		return nil, err
	}
	st, err := store.OpenWithDriver(env.Driver, env.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	g, err := loadGenesis(env.Genesis)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := checkPinned(ctx, st, g); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
