package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
)

// Device kinds accepted by NewDevice.
const (
	DeviceAuto = "auto"
	DeviceOto  = "oto"
	DeviceNull = "null"
)

// DefaultSampleRate is the output rate used when none is configured.
const DefaultSampleRate beep.SampleRate = 44100

// DefaultBufferSize is the device buffer length.
const DefaultBufferSize = 100 * time.Millisecond

// Device is an audio output owned by whoever created it. Only one
// streamer plays at a time: Play stops the previous one.
type Device interface {
	SampleRate() beep.SampleRate

	// Play starts s asynchronously. The returned channel is closed when s
	// is drained or playback is stopped.
	Play(s beep.Streamer) (<-chan struct{}, error)

	Stop()
	Close() error
}

// NewDevice creates the output named by kind. "auto" opens the system
// device and falls back to a silent one when running in CI or when no
// device can be opened.
func NewDevice(kind string, rate beep.SampleRate) (Device, error) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	switch kind {
	case "", DeviceAuto:
		if IsCI() {
			log.Info("Using null audio device", "reason", "CI environment")
			return NewNullDevice(rate, true), nil
		}
		d, err := NewOtoDevice(rate, DefaultBufferSize)
		if err != nil {
			log.Warn("Failed to open audio device, falling back to null device", "error", err)
			return NewNullDevice(rate, true), nil
		}
		return d, nil

	case DeviceOto:
		d, err := NewOtoDevice(rate, DefaultBufferSize)
		if err != nil {
			return nil, err
		}
		return d, nil

	case DeviceNull:
		return NewNullDevice(rate, true), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, kind)
	}
}

// IsCI detects if we're running in a CI environment or silent audio was
// requested.
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
		"DRONE",
		"TEAMCITY_VERSION",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}

	if os.Getenv("PIPER_SPEAK_MOCK_AUDIO") == "true" {
		log.Debug("Mock audio requested via environment variable")
		return true
	}

	return false
}

// pollInterval is how often a device checks whether playback finished.
const pollInterval = 20 * time.Millisecond

// The system device only runs reliably at these rates.
func validateSampleRate(rate beep.SampleRate) error {
	if rate != 44100 && rate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", rate)
	}
	return nil
}
