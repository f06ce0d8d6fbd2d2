package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s by %s -> %s\n", event.Seq, event.Action, event.Caller, event.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext provides what state assertions need beyond the trace.
type AssertionContext struct {
	Engine *engine.Engine
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutcomeCount:
			err = assertOutcomeCount(result.Trace, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertQuery:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: query requires an engine", i)
			} else {
				err = assertQuery(actx.Engine, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertOutcomeCount counts steps with the given outcome, restricted to one
// action when Action is set.
func assertOutcomeCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if assertion.Action != "" && event.Action != assertion.Action {
			continue
		}
		if event.Outcome == assertion.Outcome {
			count++
		}
	}

	if count != assertion.Count {
		subject := assertion.Outcome
		if assertion.Action != "" {
			subject = assertion.Action + " -> " + assertion.Outcome
		}
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// emitted flattens the trace into "module.Name" event names in log order.
func emitted(trace []TraceEvent) []string {
	var names []string
	for _, event := range trace {
		for _, e := range event.Events {
			names = append(names, e.Module+"."+e.Name)
		}
	}
	return names
}

// assertEventOrder checks that events appear in the given order. Events
// need not be consecutive.
func assertEventOrder(trace []TraceEvent, assertion Assertion) error {
	names := emitted(trace)
	pos := 0
	for _, want := range assertion.Events {
		found := false
		for pos < len(names) {
			pos++
			if names[pos-1] == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("%s missing or out of order in %v", want, names),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertEventCount checks the event was emitted exactly Count times.
func assertEventCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, name := range emitted(trace) {
		if name == assertion.Event {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertQuery runs a module query at the engine's current time.
func assertQuery(eng *engine.Engine, assertion Assertion) error {
	args, err := ir.ObjectFromGo(assertion.Args)
	if err != nil {
		return fmt.Errorf("query %s.%s: args: %w", assertion.Module, assertion.Query, err)
	}

	v, err := eng.QueryLatest(assertion.Module, assertion.Query, args)
	if err != nil {
		return &AssertionError{
			Type:     AssertQuery,
			Expected: fmt.Sprintf("%s.%s to succeed", assertion.Module, assertion.Query),
			Actual:   err.Error(),
		}
	}

	if !matchValue(v, assertion.Expect) {
		return &AssertionError{
			Type:     AssertQuery,
			Expected: fmt.Sprintf("%s.%s = %v", assertion.Module, assertion.Query, assertion.Expect),
			Actual:   string(ir.MustCanonical(v)),
		}
	}
	return nil
}

// matchValue compares an actual value with a YAML-decoded expectation.
// Objects match as a subset; numbers compare by value regardless of
// signedness.
func matchValue(actual ir.Value, expected any) bool {
	want, err := ir.FromGo(expected)
	if err != nil {
		return false
	}
	return matchIR(actual, want)
}

func matchIR(actual, expected ir.Value) bool {
	switch want := expected.(type) {
	case ir.Object:
		got, ok := actual.(ir.Object)
		if !ok {
			return false
		}
		for k, v := range want {
			av, present := got[k]
			if !present || !matchIR(av, v) {
				return false
			}
		}
		return true

	case ir.Array:
		got, ok := actual.(ir.Array)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !matchIR(got[i], want[i]) {
				return false
			}
		}
		return true

	default:
		if actual == nil {
			return false
		}
		a, err := ir.MarshalCanonical(actual)
		if err != nil {
			return false
		}
		b, err := ir.MarshalCanonical(expected)
		if err != nil {
			return false
		}
		return bytes.Equal(a, b)
	}
}
