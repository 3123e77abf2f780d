package models

import (
	"errors"
	"fmt"
)

// ErrExecutionAborted marks a signal whose execution was cancelled before any
// terminal interaction (shutdown or guardian trip during the stealth delay).
// The source message is left in place so a restart can reprocess it.
var ErrExecutionAborted = errors.New("execution aborted before placement")

// DecodeError reports a malformed message field. The offending message is
// left in place for inspection, never archived.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: field %q: %s", e.Field, e.Reason)
}

// ValidationError reports a signal that decoded cleanly but cannot be traded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate: field %q: %s", e.Field, e.Reason)
}

// RiskError reports a sizing or exposure-cap violation. No terminal call is
// made for a signal rejected this way.
type RiskError struct {
	Reason string
}

func (e *RiskError) Error() string {
	return "risk: " + e.Reason
}

// ExecutionError reports a terminal rejection or timeout. Code carries the
// terminal's return code when one was received.
type ExecutionError struct {
	Code   int
	Reason string
}

func (e *ExecutionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("execution: %s (code %d)", e.Reason, e.Code)
	}
	return "execution: " + e.Reason
}
