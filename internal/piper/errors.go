package piper

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors for the Piper process engine.
var (
	// Lifecycle errors
	ErrSpawn        = errors.New("piper process could not be started")
	ErrStreamClosed = errors.New("piper diagnostic stream closed before completion")
	ErrTerminated   = errors.New("piper engine has been terminated")
	ErrNotStarted   = errors.New("piper engine is not running")
	ErrBusy         = errors.New("piper engine is already generating")
	ErrTimeout      = errors.New("piper generation timed out")

	// Request errors
	ErrEmptyText = errors.New("text is empty")
	ErrMultiline = errors.New("text must be a single line")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid piper configuration")
)

// SpawnError is returned by Start when the executable is missing or cannot be
// started. It is never retried.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSpawn, e.Binary, e.Err)
}

// Unwrap returns the underlying exec error.
func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// StreamClosedError is returned by Generate when stderr reaches end-of-stream
// before the completion line. The engine is terminated when this is returned.
type StreamClosedError struct {
	// Tail holds the last diagnostic lines read before the stream closed.
	Tail []string
	// Err is the read or write error, nil on a clean EOF.
	Err error
	// ExitErr is what reaping the process reported, if anything.
	ExitErr error
}

func (e *StreamClosedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrStreamClosed.Error())
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.ExitErr != nil {
		fmt.Fprintf(&b, " (%v)", e.ExitErr)
	}
	if n := len(e.Tail); n > 0 {
		fmt.Fprintf(&b, "; last line: %q", e.Tail[n-1])
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrStreamClosed and the underlying cause.
func (e *StreamClosedError) Unwrap() []error {
	errs := []error{ErrStreamClosed}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsFatal reports whether err leaves the engine unusable. The caller should
// shut it down and start a new one.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrMultiline),
		errors.Is(err, ErrBusy):
		return false
	}
	return true
}
