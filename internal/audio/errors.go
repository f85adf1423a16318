package audio

import (
	"errors"
	"fmt"
)

// Common errors for artifact playback.
var (
	ErrDecode          = errors.New("audio artifact could not be decoded")
	ErrEmptyFile       = errors.New("file is empty")
	ErrUnknownEncoding = errors.New("unrecognized audio encoding")
	ErrNoSamples       = errors.New("no audio samples")
	ErrDeviceClosed    = errors.New("audio device is closed")
	ErrUnknownDevice   = errors.New("unknown audio device")
	ErrNoAudioSupport  = errors.New("audio output not available in nocgo build")
)

// DecodeError reports why an artifact could not be loaded. It matches
// ErrDecode and the underlying cause with errors.Is.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDecode, e.Path, e.Err)
}

// Unwrap returns ErrDecode and the cause.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
