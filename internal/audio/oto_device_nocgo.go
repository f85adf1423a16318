//go:build nocgo
// +build nocgo

package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
)

// OtoDevice stands in for the system device in builds without cgo. It can
// never be opened, so NewDevice("auto") falls back to a NullDevice.
type OtoDevice struct {
	rate beep.SampleRate
}

// NewOtoDevice always fails with ErrNoAudioSupport.
func NewOtoDevice(rate beep.SampleRate, _ time.Duration) (*OtoDevice, error) {
	if err := validateSampleRate(rate); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return nil, ErrNoAudioSupport
}

func (d *OtoDevice) SampleRate() beep.SampleRate {
	return d.rate
}

func (d *OtoDevice) Play(beep.Streamer) (<-chan struct{}, error) {
	return nil, ErrNoAudioSupport
}

func (d *OtoDevice) Stop() {}

func (d *OtoDevice) Close() error {
	return nil
}
