package gosf2synth

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by operations on a synthesizer that was not
// created with NewSynthesizer or whose bank failed to load.
var ErrNotInitialized = errors.New("synthesizer is not initialized")

// FormatError reports a malformed or incomplete SoundFont bank.
// A bank that produced a FormatError is unusable.
type FormatError struct {
	Chunk  string // four-character chunk ID, or "" for the container itself
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "invalid soundfont"
	if e.Chunk != "" {
		msg += " (" + e.Chunk + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func newFormatError(chunk, format string, args ...interface{}) *FormatError {
	return &FormatError{Chunk: chunk, Reason: fmt.Sprintf(format, args...)}
}

// RangeError reports an invalid setting, such as a sample rate outside the
// supported range.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be within %d..%d, got %d", e.Field, e.Min, e.Max, e.Value)
}

// StateError reports an operation attempted on an engine that cannot serve it.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}
