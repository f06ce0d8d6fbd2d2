package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/config"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

// GenesisResult describes a validated genesis file.
type GenesisResult struct {
	File       string    `json:"file"`
	Hash       string    `json:"hash"`
	StateRoot  string    `json:"state_root"`
	Parameters ir.Object `json:"parameters"`
	Supply     uint64    `json:"supply"`
}

// NewGenesisCommand creates the genesis command.
func NewGenesisCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "genesis [file]",
		Short: "Validate a genesis file and print its hash",
		Long: `Validate a genesis CUE file against the built-in schema, apply defaults,
and print the genesis hash and the state root before the first action.

The file defaults to --genesis, then LEDGERD_GENESIS, then genesis.cue.

Exit codes:
  0 - Genesis is valid
  2 - Genesis could not be read or failed validation

Examples:
  ledgerd genesis ./genesis.cue
  ledgerd genesis --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runGenesis(rootOpts, file, cmd)
		},
	}
}

func runGenesis(opts *RootOptions, file string, cmd *cobra.Command) error {
	if file == "" {
		env, err := opts.resolveEnv()
		if err != nil {
			return err
		}
		file = env.Genesis
	}

	g, err := config.LoadGenesis(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid genesis", err)
	}
	hash, err := g.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash genesis", err)
	}
	eng, err := engine.New(g, engine.WithLogger(opts.Logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build genesis state", err)
	}

	result := GenesisResult{
		File:       file,
		Hash:       hash,
		StateRoot:  eng.StateRoot(),
		Parameters: g.ToObject(),
		Supply:     supply(g),
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Genesis: %s\n", file)
		fmt.Fprintf(w, "  Hash:       %s\n", result.Hash)
		fmt.Fprintf(w, "  State root: %s\n", result.StateRoot)
		fmt.Fprintf(w, "  Owner:      %s\n", g.Owner)
		fmt.Fprintf(w, "  Moderators: %v\n", g.Moderators())
		fmt.Fprintf(w, "  Endowed:    %d account(s), %s total\n", len(g.Endowments), humanize.Comma(int64(result.Supply)))

		accounts := make([]chain.AccountID, 0, len(g.Endowments))
		for acct := range g.Endowments {
			accounts = append(accounts, acct)
		}
		slices.Sort(accounts)
		for _, acct := range accounts {
			fmt.Fprintf(w, "    %-16s %s\n", acct, humanize.Comma(int64(g.Endowments[acct])))
		}
	})
}

// supply sums the genesis endowments, saturating on overflow.
func supply(g engine.Genesis) uint64 {
	var total uint64
	for _, amount := range g.Endowments {
		if total+amount < total {
			return ^uint64(0)
		}
		total += amount
	}
	return total
}
