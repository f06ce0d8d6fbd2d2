package engine

import (
	"errors"
	"fmt"
)

// Error is an engine infrastructure error. Unlike a module rejection, an
// Error means the action never entered the log: no seq was consumed and no
// receipt exists.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Module and Action identify the request, when known.
	Module string
	Action string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeTimeRegression indicates an action older than the last one applied.
	ErrCodeTimeRegression ErrorCode = "TIME_REGRESSION"

	// ErrCodeUnknownModule indicates no module is registered under the name.
	ErrCodeUnknownModule ErrorCode = "UNKNOWN_MODULE"

	// ErrCodeUnknownAction indicates the module has no such action or query.
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION"

	// ErrCodeRecordFailed indicates the durable recorder refused the action.
	ErrCodeRecordFailed ErrorCode = "RECORD_FAILED"

	// ErrCodeReplayMismatch indicates a replayed receipt differs from the log.
	ErrCodeReplayMismatch ErrorCode = "REPLAY_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Module != "" && e.Action != "" {
		return fmt.Sprintf("%s: %s (action=%s.%s)", e.Code, e.Message, e.Module, e.Action)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func codeIs(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTimeRegression returns true if the error is a time regression.
// Uses errors.As to handle wrapped errors.
func IsTimeRegression(err error) bool {
	return codeIs(err, ErrCodeTimeRegression)
}

// IsUnknown returns true if the error names an unknown module, action or query.
func IsUnknown(err error) bool {
	return codeIs(err, ErrCodeUnknownModule) || codeIs(err, ErrCodeUnknownAction)
}

// IsReplayMismatch returns true if the error is a replay divergence.
func IsReplayMismatch(err error) bool {
	return codeIs(err, ErrCodeReplayMismatch)
}
