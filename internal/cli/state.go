package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/ir"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Dump bool
}

// ModuleState summarizes one module's state.
type ModuleState struct {
	Name  string `json:"name"`
	Bytes int    `json:"bytes"`
}

// StateResult is what state prints.
type StateResult struct {
	Seq         int64         `json:"seq"`
	Time        uint64        `json:"time"`
	StateRoot   string        `json:"state_root"`
	GenesisHash string        `json:"genesis_hash"`
	Modules     []ModuleState `json:"modules"`
	Snapshot    ir.Object     `json:"snapshot,omitempty"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the head of the log and the state root",
		Long: `Rebuild state from the log and print the head seq, time, state root and
the canonical size of each module's state. --dump prints the complete
canonical snapshot the state root is computed over.

Examples:
  ledgerd state
  ledgerd state --dump --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the full canonical snapshot")

	return cmd
}

func runState(opts *StateOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	l, err := openLedger(ctx, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer l.Close()

	genesisHash, err := l.store.GenesisHash(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read genesis hash", err)
	}

	snap := l.engine.Snapshot()
	result := StateResult{
		Seq:         l.engine.Seq(),
		Time:        uint64(l.engine.Now()),
		StateRoot:   l.engine.StateRoot(),
		GenesisHash: genesisHash,
	}
	for _, name := range l.engine.Modules() {
		result.Modules = append(result.Modules, ModuleState{
			Name:  name,
			Bytes: len(ir.MustCanonical(snap[name])),
		})
	}
	if opts.Dump {
		result.Snapshot = snap
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Seq:        %s\n", humanize.Comma(result.Seq))
		fmt.Fprintf(w, "Time:       %d\n", result.Time)
		fmt.Fprintf(w, "State root: %s\n", result.StateRoot)
		fmt.Fprintf(w, "Genesis:    %s\n", result.GenesisHash)
		for _, m := range result.Modules {
			fmt.Fprintf(w, "  %-10s %s\n", m.Name, humanize.Bytes(uint64(m.Bytes)))
		}
		if opts.Dump {
			fmt.Fprintf(w, "%s\n", ir.MustCanonical(snap))
		}
	})
}

// BalanceResult is what balance prints.
type BalanceResult struct {
	Account  string `json:"account"`
	Free     uint64 `json:"free"`
	Reserved uint64 `json:"reserved"`
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>...",
		Short: "Show free and reserved balances",
		Long: `Show the free and reserved balance of each account. Reserved funds are
post and group deposits; they are never released.

Examples:
  ledgerd balance alice bob`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(rootOpts, args, cmd)
		},
	}
}

func runBalance(opts *RootOptions, accounts []string, cmd *cobra.Command) error {
	l, err := openLedger(cmd.Context(), opts, false)
	if err != nil {
		return err
	}
	defer l.Close()

	results := make([]BalanceResult, 0, len(accounts))
	for _, acct := range accounts {
		v, err := l.engine.QueryLatest("escrow", "balance", ir.Obj(ir.O("account", ir.String(acct))))
		if err != nil {
			return WrapExitError(ExitFailure, "balance query failed", err)
		}
		obj := v.(ir.Object)
		results = append(results, BalanceResult{
			Account:  acct,
			Free:     uint64(obj["free"].(ir.Uint)),
			Reserved: uint64(obj["reserved"].(ir.Uint)),
		})
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(results, func(w io.Writer) {
		for _, b := range results {
			fmt.Fprintf(w, "%-16s free %12s  reserved %12s\n",
				b.Account, humanize.Comma(int64(b.Free)), humanize.Comma(int64(b.Reserved)))
		}
	})
}
