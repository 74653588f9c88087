package bes

import (
	"errors"
	"fmt"
)

// ErrorCause is the error code the board firmware attaches to a failed
// command response.
type ErrorCause int

const (
	CauseNone         ErrorCause = 0
	CauseResourceBusy ErrorCause = 1
	CauseCommandParam ErrorCause = 2
	CauseNotSupported ErrorCause = 3
	CauseTimeout      ErrorCause = 4
	CauseStackError   ErrorCause = 5
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNone:
		return "no error"
	case CauseResourceBusy:
		return "resource busy"
	case CauseCommandParam:
		return "command parameter error"
	case CauseNotSupported:
		return "command not supported"
	case CauseTimeout:
		return "timeout"
	case CauseStackError:
		return "bt stack error"
	default:
		return fmt.Sprintf("unknown error code %d", int(c))
	}
}

// CommandError reports a command the board rejected with a non-zero
// error code.
type CommandError struct {
	Command string
	Cause   ErrorCause
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed on the board: %s", e.Command, e.Cause)
}

// CommandTimeoutError reports a command whose response never arrived on
// the console within the execution deadline.
type CommandTimeoutError struct {
	Command string
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("no response to command %q within the execution timeout", e.Command)
}

// Sentinel errors for harness-side failures.
var (
	// ErrNotImplemented marks operations the board firmware does not
	// provide, either at all or on this firmware generation.
	ErrNotImplemented = errors.New("not implemented on this board")

	// ErrInvalidArgument marks operation arguments rejected before any
	// command is sent to the board.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnparseableResponse marks board responses that do not match
	// the expected grammar.
	ErrUnparseableResponse = errors.New("unparseable board response")

	// ErrClosed marks operations attempted after the session was
	// closed.
	ErrClosed = errors.New("board session is closed")
)
