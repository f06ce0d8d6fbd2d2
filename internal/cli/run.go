package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Batch string
}

// RunResult summarizes a run.
type RunResult struct {
	Submitted int           `json:"submitted"`
	Accepted  int           `json:"accepted"`
	Rejected  int           `json:"rejected"`
	Seq       int64         `json:"seq"`
	StateRoot string        `json:"state_root"`
	Entries   []ir.LogEntry `json:"entries"`
}

// requestLine is one line of a request file.
type requestLine struct {
	Action string          `json:"action"` // module.name
	Caller string          `json:"caller"`
	Time   *uint64         `json:"time,omitempty"`
	Batch  string          `json:"batch,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <requests.jsonl>",
		Short: "Feed a file of actions through the engine loop",
		Long: `Start the single-writer engine loop and submit every action in a
JSON-lines file, in order. Use "-" to read from stdin.

Each line is an object:
  {"action":"poll.vote","caller":"bob","time":2000,"args":{"poll_id":1,"option_index":0}}

"time" defaults to the previous line's time; "batch" defaults to --batch,
then to a generated token per action. Ctrl-C stops after the action in
flight.

Exit codes:
  0 - Every action entered the log
  1 - An action could not enter the log
  2 - Command error (unreadable file, bad line)

Examples:
  ledgerd run ./actions.jsonl
  cat actions.jsonl | ledgerd run - --batch import-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "batch token for lines without one")

	return cmd
}

func runRequests(opts *RunOptions, path string, cmd *cobra.Command) error {
	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open request file", err)
		}
		defer f.Close()
		in = f
	}
	lines, err := readRequestLines(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request file", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			opts.Logger().Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	l, err := openLedger(ctx, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer l.Close()

	startSeq := l.engine.Seq()
	at := l.engine.Now()
	result := RunResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.engine.Run(gctx)
	})
	g.Go(func() error {
		defer l.engine.Stop()
		for i, line := range lines {
			req, err := line.request(opts.Batch, at)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("line %d", i+1), err)
			}
			at = req.Time

			res := <-l.engine.Submit(req)
			if res.Err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("line %d: %s not applied", i+1, line.Action), res.Err)
			}
			result.Submitted++
			if res.Receipt.Accepted() {
				result.Accepted++
			} else {
				result.Rejected++
			}
		}
		return nil
	})

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		runErr = NewExitError(ExitFailure, "interrupted")
	}

	// The loop has exited; the engine is ours again.
	result.Seq = l.engine.Seq()
	result.StateRoot = l.engine.StateRoot()
	entries, err := l.store.ReadRange(ctx, startSeq+1, result.Seq)
	if err != nil && runErr == nil {
		return WrapExitError(ExitCommandError, "failed to read back entries", err)
	}
	result.Entries = entries
	if runErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "stopped after %d action(s)\n", result.Submitted)
		return runErr
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) {
		for _, e := range result.Entries {
			writeEntry(w, e.Action, e.Receipt, opts.Verbose)
		}
		fmt.Fprintf(w, "\n%d submitted, %d accepted, %d rejected; seq %d\n",
			result.Submitted, result.Accepted, result.Rejected, result.Seq)
		fmt.Fprintf(w, "State root: %s\n", result.StateRoot)
	})
}

// readRequestLines parses a JSON-lines request file. Blank lines are skipped.
func readRequestLines(r io.Reader) ([]requestLine, error) {
	var lines []requestLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for scanner.Scan() {
		n++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line requestLine
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if line.Caller == "" {
			return nil, fmt.Errorf("line %d: caller is required", n)
		}
		if _, _, err := parseRef(line.Action); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// request builds the engine request, defaulting batch and time.
func (l requestLine) request(batch string, prev chain.Time) (engine.Request, error) {
	module, name, _ := parseRef(l.Action)
	args, err := ir.ParseObject(l.Args)
	if err != nil {
		return engine.Request{}, fmt.Errorf("args: %w", err)
	}
	req := engine.Request{
		Batch:  batch,
		Module: module,
		Action: name,
		Caller: chain.AccountID(l.Caller),
		Time:   prev,
		Args:   args,
	}
	if l.Batch != "" {
		req.Batch = l.Batch
	}
	if l.Time != nil {
		req.Time = chain.Time(*l.Time)
	}
	return req, nil
}
