package store

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
)

// LogIssue describes one structural defect found by CheckLog.
type LogIssue struct {
	Seq     int64
	Message string
}

func (i LogIssue) String() string {
	return fmt.Sprintf("seq %d: %s", i.Seq, i.Message)
}

// CheckLog verifies the log's structure without re-executing it:
//   - seqs are contiguous from 1
//   - action times never decrease
//   - stored ids match ids recomputed from stored content
//   - rejected receipts carry no events and repeat the previous state root
//
// genesisRoot is the state root before seq 1. Returns all issues found
// (does not fail fast). Re-execution is engine.Replay's job.
func (s *Store) CheckLog(ctx context.Context, genesisRoot string) ([]LogIssue, error) {
	entries, err := s.ReadLog(ctx)
	if err != nil {
		return nil, err
	}
	return checkEntries(entries, genesisRoot), nil
}

func checkEntries(entries []ir.LogEntry, genesisRoot string) []LogIssue {
	var (
		issues   []LogIssue
		prevRoot = genesisRoot
		prevTime uint64
	)
	for i, e := range entries {
		seq := e.Action.Seq
		if want := int64(i + 1); seq != want {
			issues = append(issues, LogIssue{Seq: seq, Message: fmt.Sprintf("expected seq %d", want)})
		}
		if e.Action.Time < prevTime {
			issues = append(issues, LogIssue{Seq: seq, Message: fmt.Sprintf("time %d before %d", e.Action.Time, prevTime)})
		}
		prevTime = e.Action.Time

		if id, err := ir.ActionID(e.Action); err != nil || id != e.Action.ID {
			issues = append(issues, LogIssue{Seq: seq, Message: "action id does not match content"})
		}
		if id, err := ir.ReceiptID(e.Receipt); err != nil || id != e.Receipt.ID {
			issues = append(issues, LogIssue{Seq: seq, Message: "receipt id does not match content"})
		}

		if !e.Receipt.Accepted() {
			if len(e.Receipt.Events) > 0 {
				issues = append(issues, LogIssue{Seq: seq, Message: "rejected action has events"})
			}
			if e.Receipt.StateRoot != prevRoot {
				issues = append(issues, LogIssue{Seq: seq, Message: "rejected action changed the state root"})
			}
		}
		prevRoot = e.Receipt.StateRoot
	}
	return issues
}
