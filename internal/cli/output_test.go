package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	called := false
	err := formatter.Success(map[string]string{"result": "success"}, func(io.Writer) { called = true })
	require.NoError(t, err)
	assert.False(t, called, "text writer must not run in json mode")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success(nil, func(w io.Writer) { fmt.Fprint(w, "hello") })
	require.NoError(t, err)
	assert.Equal(t, "hello", buf.String())
}

func TestOutputFormatter_JSONFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Failure("E_REPLAY", "replicas diverged", map[string]int{"replicas": 2}, func(io.Writer) {})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_REPLAY", resp.Error.Code)
	assert.Equal(t, "replicas diverged", resp.Error.Message)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Failure("E_TEST_FAILED", "1 scenario(s) failed", nil, func(w io.Writer) {
		fmt.Fprint(w, "✗ broken")
	})
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "✗ broken", buf.String())
}

func TestOutputFormatter_NoHTMLEscaping(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success("a -> b & <c>", nil))
	assert.Contains(t, buf.String(), "a -> b & <c>")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit failure", NewExitError(ExitFailure, "diverged"), ExitFailure},
		{"command error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	err := WrapExitError(ExitCommandError, "failed to open database", errors.New("disk full"))
	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "disk full")

	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
}
