// Command ledgerd applies actions to a deterministic social ledger and
// verifies its action log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ledgerd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
