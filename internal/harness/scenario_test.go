package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/poll_lifecycle.yaml")
	require.NoError(t, err)

	assert.Equal(t, "poll-lifecycle", s.Name)
	assert.Equal(t, "poll-batch", s.Batch)
	require.NotEmpty(t, s.Steps)
	assert.Equal(t, "poll.create_poll", s.Steps[0].Action)
	require.NotNil(t, s.Steps[0].Time)
	assert.Equal(t, uint64(1000), *s.Steps[0].Time)
	assert.Equal(t, []any{"A", "B"}, s.Steps[0].Args["options"])
	assert.Equal(t, []string{"PollCreated"}, s.Steps[0].Expect.Events)
	assert.Equal(t, uint64(1000), s.Steps[1].Advance)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	const steps = "steps:\n  - action: poll.vote\n    caller: a\n    args: {}\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: n\ndescription: d\nstep: []\n", "field step not found"},
		{"missing name", "description: d\n" + steps, "name is required"},
		{"missing description", "name: n\n" + steps, "description is required"},
		{"no steps", "name: n\ndescription: d\n", "steps list is required"},
		{"bad action", "name: n\ndescription: d\nsteps:\n  - action: vote\n    caller: a\n", "action must be module.name"},
		{"nested action", "name: n\ndescription: d\nsteps:\n  - action: a.b.c\n    caller: a\n", "action must be module.name"},
		{"missing caller", "name: n\ndescription: d\nsteps:\n  - action: poll.vote\n", "caller is required"},
		{"expect without outcome", "name: n\ndescription: d\nsteps:\n  - action: poll.vote\n    caller: a\n    expect: {events: []}\n", "outcome is required"},
		{"unknown assertion", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: final_state\n", `unknown assertion type "final_state"`},
		{"outcome_count without outcome", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: outcome_count\n    count: 1\n", "outcome is required"},
		{"negative count", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: event_count\n    event: poll.VoteCast\n    count: -1\n", "non-negative"},
		{"query without expect", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: query\n    module: poll\n    query: get_total_polls\n", "expect is required"},
		{"event_order without events", "name: n\ndescription: d\n" + steps + "assertions:\n  - type: event_order\n", "events list is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSplitAction(t *testing.T) {
	module, name, ok := splitAction("community.join_group")
	require.True(t, ok)
	assert.Equal(t, "community", module)
	assert.Equal(t, "join_group", name)

	for _, bad := range []string{"", "poll", ".vote", "poll.", "a.b.c"} {
		_, _, ok := splitAction(bad)
		assert.False(t, ok, bad)
	}
}
