package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecord means the command file is missing or empty.
	ErrNoRecord = errors.New("no command record")
	// ErrNoResult means the result file is missing.
	ErrNoResult = errors.New("no result record")
	// ErrStaleRecord means the command file now holds a different publish
	// than the one the caller is advancing.
	ErrStaleRecord = errors.New("command record superseded")
)

// ParseError is returned when a channel file holds malformed JSON.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError is a failed open, read, write or close on a channel file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("channel %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// TransitionError rejects a status change the state machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %q -> %q", e.From, e.To)
}
