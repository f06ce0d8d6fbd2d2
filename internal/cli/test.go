package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario name filter (glob pattern)
	Golden string // golden directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name      string   `json:"name"`
	File      string   `json:"file"`
	Pass      bool     `json:"pass"`
	Golden    string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	StateRoot string   `json:"state_root,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run scenario files against a fresh ledger",
		Long: `Run YAML scenarios against an in-memory ledger.

Each scenario gets its own genesis and database. Step expectations and
assertions are checked, the log is replayed and verified, and the trace
is compared byte for byte with <golden>/<scenario name>.golden when that
file exists. The golden directory defaults to "golden" next to the
scenarios directory.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad filter)

Examples:
  ledgerd test ./testdata/scenarios
  ledgerd test ./testdata/scenarios --filter "poll-*"
  ledgerd test ./testdata/scenarios --update
  ledgerd test ./testdata/scenarios/follow_graph.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name matches this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	info, err := os.Stat(path)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios not found: %s", path))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	files, err := harness.Discover(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	goldenDir := opts.Golden
	if goldenDir == "" {
		dir := path
		if !info.IsDir() {
			dir = filepath.Dir(path)
		}
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		scen, err := harness.LoadScenario(file)
		if err != nil {
			result.add(ScenarioResult{
				Name:   filepath.Base(file),
				File:   file,
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			})
			continue
		}
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, scen.Name); !ok {
				continue
			}
		}
		opts.Logger().Debug("running scenario", "name", scen.Name, "file", file)
		result.add(runScenario(opts, cmd, scen, file, goldenDir))
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	text := func(w io.Writer) { writeTestText(w, result) }
	if result.Failed > 0 {
		return out.Failure("E_TEST_FAILED", fmt.Sprintf("%d scenario(s) failed", result.Failed), result, text)
	}
	return out.Success(result, text)
}

func (r *TestResult) add(s ScenarioResult) {
	s.Pass = len(s.Errors) == 0
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// runScenario executes a single scenario and checks its golden file.
func runScenario(opts *TestOptions, cmd *cobra.Command, scen *harness.Scenario, file, goldenDir string) ScenarioResult {
	sr := ScenarioResult{Name: scen.Name, File: file}

	res, err := harness.Run(cmd.Context(), scen)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.StateRoot = res.StateRoot
	sr.Errors = append(sr.Errors, res.Errors...)

	snapshot := harness.TraceSnapshot{Scenario: scen.Name, Trace: res.Trace}
	current, err := snapshot.MarshalCanonical()
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return sr
	}

	goldenPath := filepath.Join(goldenDir, scen.Name+".golden")
	if opts.Update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to create golden directory: %v", err))
			return sr
		}
		if err := os.WriteFile(goldenPath, current, 0o644); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to write golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sr.Golden = "missing"
	case err != nil:
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(golden, current):
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	default:
		sr.Golden = "match"
	}
	return sr
}

func writeTestText(w io.Writer, result TestResult) {
	for _, s := range result.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		suffix := ""
		if s.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, s.Name, suffix)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
