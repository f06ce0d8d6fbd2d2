package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of the ledger: a genesis, a sequence of
// actions with expected outcomes, and assertions over the resulting trace
// and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Genesis is inline CUE checked against the genesis schema.
	// Empty means stock parameters owned by "owner".
	Genesis string `yaml:"genesis,omitempty"`

	// Batch tags every action. Defaults to testutil.DefaultBatchToken.
	Batch string `yaml:"batch,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: outcome_count, event_order, event_count, query
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action submission.
type Step struct {
	// Action is "module.name", e.g. "poll.vote".
	Action string `yaml:"action"`

	Caller string `yaml:"caller"`

	// Time sets the logical time of this step. When omitted the step runs
	// at the previous step's time plus Advance.
	Time *uint64 `yaml:"time,omitempty"`

	// Advance moves logical time forward before this step.
	Advance uint64 `yaml:"advance,omitempty"`

	Args map[string]any `yaml:"args"`

	// Expect validates the receipt. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected receipt.
type ExpectClause struct {
	// Outcome is "Success" or a rejection code such as "AlreadyVoted".
	Outcome string `yaml:"outcome"`

	// Result is a subset match against the receipt result.
	Result map[string]any `yaml:"result,omitempty"`

	// Events lists the emitted event names in order. Exact match.
	Events []string `yaml:"events,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outcome_count": number of steps with Outcome, optionally for Action
	// - "event_order": event names appear in this order
	// - "event_count": event Event was emitted exactly Count times
	// - "query": module query result matches Expect
	Type string `yaml:"type"`

	Action  string `yaml:"action,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Event is "module.Name" (used by event_count).
	Event string `yaml:"event,omitempty"`

	// Events is the expected order of "module.Name" (used by event_order).
	Events []string `yaml:"events,omitempty"`

	Count int `yaml:"count"`

	Module string         `yaml:"module,omitempty"`
	Query  string         `yaml:"query,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Expect is compared against the query result. Objects match as a
	// subset; everything else must be equal.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcomeCount = "outcome_count"
	AssertEventOrder   = "event_order"
	AssertEventCount   = "event_count"
	AssertQuery        = "query"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// splitAction splits "module.name".
func splitAction(ref string) (module, name string, ok bool) {
	module, name, ok = strings.Cut(ref, ".")
	if !ok || module == "" || name == "" || strings.Contains(name, ".") {
		return "", "", false
	}
	return module, name, true
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if _, _, ok := splitAction(step.Action); !ok {
			return fmt.Errorf("steps[%d]: action must be module.name, got %q", i, step.Action)
		}
		if step.Caller == "" {
			return fmt.Errorf("steps[%d]: caller is required", i)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("steps[%d].expect: outcome is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertOutcomeCount:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcome_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
	case AssertQuery:
		if a.Module == "" || a.Query == "" {
			return fmt.Errorf("assertions[%d]: module and query are required for query", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for query", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
