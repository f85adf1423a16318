package tts

import "errors"

// Common controller errors
var (
	// ErrNothingToSay indicates the text was empty after normalization
	ErrNothingToSay = errors.New("nothing to say")

	// ErrClosed indicates Speak was called after Close
	ErrClosed = errors.New("controller is closed")

	// ErrModelNotConfigured indicates no voice model path was given
	ErrModelNotConfigured = errors.New("piper model path not configured")

	// ErrBinaryNotFound indicates the Piper executable could not be located
	ErrBinaryNotFound = errors.New("piper binary not found")
)
