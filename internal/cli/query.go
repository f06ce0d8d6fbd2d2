package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/ir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Args string
	At   uint64
}

// QueryResult is what query prints.
type QueryResult struct {
	Module string   `json:"module"`
	Query  string   `json:"query"`
	At     uint64   `json:"at"`
	Value  rawValue `json:"value"`
}

// rawValue renders any ir.Value as canonical JSON.
type rawValue struct{ ir.Value }

func (v rawValue) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(v.Value)
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <module.query>",
		Short: "Run a read-only query against the current state",
		Long: `Run a read-only query against the state rebuilt from the log.

Time-dependent queries (poll results) are evaluated at --at, which
defaults to the time of the last logged action. Missing records print
null.

Examples:
  ledgerd query poll.get_poll_results --args '{"poll_id":1}'
  ledgerd query community.inbox --args '{"account":"bob"}'
  ledgerd query escrow.balance --args '{"account":"alice"}' --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "query arguments as JSON")
	cmd.Flags().Uint64Var(&opts.At, "at", 0, "logical time to evaluate at (default: time of the last action)")

	return cmd
}

func runQuery(opts *QueryOptions, ref string, cmd *cobra.Command) error {
	module, name, err := parseRef(ref)
	if err != nil {
		return err
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return err
	}

	l, err := openLedger(cmd.Context(), opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer l.Close()

	at := chain.Time(opts.At)
	if !cmd.Flags().Changed("at") {
		at = l.engine.Now()
	}
	v, err := l.engine.Query(module, name, at, args)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", ref), err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(QueryResult{Module: module, Query: name, At: uint64(at), Value: rawValue{v}}, func(w io.Writer) {
		fmt.Fprintf(w, "%s\n", ir.MustCanonical(v))
	})
}
