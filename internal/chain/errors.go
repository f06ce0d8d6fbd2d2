package chain

import (
	"errors"
	"fmt"
)

// Code enumerates every way an action can be rejected. Codes are recorded
// verbatim as the receipt outcome.
type Code string

const (
	// Shared.
	CodeInvalidArguments    Code = "InvalidArguments"
	CodeInsufficientBalance Code = "InsufficientBalance"
	CodeUnauthorized        Code = "Unauthorized"
	CodeIDExhausted         Code = "IdentifierExhausted"

	// Poll module.
	CodePollNotFound     Code = "PollNotFound"
	CodePollEnded        Code = "PollEnded"
	CodePollNotStarted   Code = "PollNotStarted"
	CodeInvalidOption    Code = "InvalidOption"
	CodeAlreadyVoted     Code = "AlreadyVoted"
	CodeNotAuthorized    Code = "NotAuthorized"
	CodeInvalidTimeRange Code = "InvalidTimeRange"
	CodeEmptyOptions     Code = "EmptyOptions"

	// Token-social module.
	CodePostNotFound      Code = "PostNotFound"
	CodePostTooLong       Code = "PostTooLong"
	CodeAlreadyLiked      Code = "AlreadyLiked"
	CodeNotLiked          Code = "NotLiked"
	CodeCannotLikeOwnPost Code = "CannotLikeOwnPost"
	CodeCannotFollowSelf  Code = "CannotFollowSelf"
	CodeAlreadyFollowing  Code = "AlreadyFollowing"
	CodeNotFollowing      Code = "NotFollowing"

	// Community module.
	CodeGroupNotFound           Code = "GroupNotFound"
	CodeGroupNameTooLong        Code = "GroupNameTooLong"
	CodeGroupDescriptionTooLong Code = "GroupDescriptionTooLong"
	CodeGroupFull               Code = "GroupFull"
	CodeNotGroupMember          Code = "NotGroupMember"
	CodeNotGroupAdmin           Code = "NotGroupAdmin"
	CodeAlreadyGroupMember      Code = "AlreadyGroupMember"
	CodeMessageNotFound         Code = "MessageNotFound"
	CodeMessageTooLong          Code = "MessageTooLong"
	CodeCannotMessageSelf       Code = "CannotMessageSelf"
	CodeUserBlocked             Code = "UserBlocked"
	CodeReportNotFound          Code = "ReportNotFound"
	CodeCannotBlockSelf         Code = "CannotBlockSelf"
	CodeAlreadyBlocked          Code = "AlreadyBlocked"
	CodeNotBlocked              Code = "NotBlocked"
)

// Rejection is a typed, expected refusal of an action. It is a normal
// outcome recorded in the receipt, never a fault.
type Rejection struct {
	// Code identifies the rejection.
	Code Code

	// Module names the module that rejected the action.
	Module string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Message == "" {
		return fmt.Sprintf("%s: %s", r.Module, r.Code)
	}
	return fmt.Sprintf("%s: %s: %s", r.Module, r.Code, r.Message)
}

// Is matches rejections by code, so errors.Is(err, poll.ErrAlreadyVoted)
// holds for any AlreadyVoted rejection. A target with a Module set must
// also match the module.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	if t.Module != "" && t.Module != r.Module {
		return false
	}
	return t.Code == r.Code
}

// Reject builds a rejection with a formatted message.
func Reject(module string, code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Module: module, Message: fmt.Sprintf(format, args...)}
}

// Sentinel returns a message-less rejection usable as an errors.Is target.
func Sentinel(module string, code Code) *Rejection {
	return &Rejection{Code: code, Module: module}
}

// AsRejection extracts a rejection from err.
// Uses errors.As to handle wrapped errors.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsRejection returns true if err is a rejection.
func IsRejection(err error) bool {
	_, ok := AsRejection(err)
	return ok
}

// CodeOf returns the rejection code carried by err, or "" if err is not a
// rejection.
func CodeOf(err error) Code {
	if r, ok := AsRejection(err); ok {
		return r.Code
	}
	return ""
}
