package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Caller string
	Time   uint64
	Batch  string
	Args   string
}

// ApplyResult is what apply prints.
type ApplyResult struct {
	Action  ir.Action  `json:"action"`
	Receipt ir.Receipt `json:"receipt"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <module.action>",
		Short: "Apply one action and append it to the log",
		Long: `Apply one action to the ledger and append it to the log.

The ledger is rebuilt by replaying the log, the action is applied, and the
action and its receipt are written in one transaction. A rejected action
is still logged; its rejection code is the receipt outcome.

--time is the host-assigned logical time. It defaults to the time of the
last logged action and may never go backwards.

Exit codes:
  0 - Action entered the log (accepted or rejected)
  1 - Action could not enter the log (unknown action, time regression)
  2 - Command error

Examples:
  ledgerd apply poll.create_poll --caller alice --time 1000 \
    --args '{"title":"Lunch","description":"where","options":["A","B"],"duration_hours":24}'
  ledgerd apply social.like_post --caller bob --args '{"post_id":0}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "account submitting the action (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().Uint64Var(&opts.Time, "time", 0, "logical time (default: time of the last action)")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "batch token (default: generated)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "action arguments as JSON")

	return cmd
}

func runApply(opts *ApplyOptions, ref string, cmd *cobra.Command) error {
	module, name, err := parseRef(ref)
	if err != nil {
		return err
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	l, err := openLedger(ctx, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer l.Close()

	at := chain.Time(opts.Time)
	if !cmd.Flags().Changed("time") {
		at = l.engine.Now()
	}

	receipt, err := l.engine.Apply(ctx, engine.Request{
		Batch:  opts.Batch,
		Module: module,
		Action: name,
		Caller: chain.AccountID(opts.Caller),
		Time:   at,
		Args:   args,
	})
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s not applied", ref), err)
	}

	entry, err := l.store.ReadEntry(ctx, receipt.Seq)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read back entry", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(ApplyResult{Action: entry.Action, Receipt: receipt}, func(w io.Writer) {
		writeEntry(w, entry.Action, receipt, opts.Verbose)
	})
}

// writeEntry prints one log position in text form.
func writeEntry(w io.Writer, action ir.Action, receipt ir.Receipt, verbose bool) {
	mark := "✓"
	if !receipt.Accepted() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s [%d] %s.%s by %s at %d -> %s\n",
		mark, receipt.Seq, action.Module, action.Name, action.Caller, action.Time, receipt.Outcome)
	if len(receipt.Result) > 0 {
		fmt.Fprintf(w, "    result: %s\n", ir.MustCanonical(receipt.Result))
	}
	for _, ev := range receipt.Events {
		fmt.Fprintf(w, "    event:  %s.%s %s\n", ev.Module, ev.Name, ir.MustCanonical(ev.ToObject()["fields"]))
	}
	if verbose {
		fmt.Fprintf(w, "    batch:  %s\n", action.Batch)
		fmt.Fprintf(w, "    args:   %s\n", ir.MustCanonical(action.Args))
		fmt.Fprintf(w, "    id:     %s\n", action.ID)
		fmt.Fprintf(w, "    root:   %s\n", receipt.StateRoot)
	}
}
