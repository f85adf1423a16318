//go:build !nocgo
// +build !nocgo

package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
)

// OtoDevice plays through the system audio device using oto. oto allows a
// single context per process, so create one OtoDevice and pass it around.
type OtoDevice struct {
	context *oto.Context
	rate    beep.SampleRate

	mu     sync.Mutex
	player *oto.Player
	// Keep the reader alive while oto pulls from it.
	stream *pcmReader
	stop   chan struct{}
	closed bool
}

// NewOtoDevice opens the audio device at rate.
func NewOtoDevice(rate beep.SampleRate, bufferSize time.Duration) (*OtoDevice, error) {
	if err := validateSampleRate(rate); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   int(rate),
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	return &OtoDevice{context: ctx, rate: rate}, nil
}

func (d *OtoDevice) SampleRate() beep.SampleRate {
	return d.rate
}

// Play stops any current playback and starts s.
func (d *OtoDevice) Play(s beep.Streamer) (<-chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}
	if err := d.context.Err(); err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}

	d.stopLocked()

	stream := newPCMReader(s)
	player := d.context.NewPlayer(stream)
	if player == nil {
		return nil, errors.New("failed to create oto player")
	}

	d.player = player
	d.stream = stream
	d.stop = make(chan struct{})

	player.Play()

	done := make(chan struct{})
	go d.watch(player, d.stop, done)
	return done, nil
}

// watch closes done once the player runs out of data or is stopped.
func (d *OtoDevice) watch(player *oto.Player, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !player.IsPlaying() {
				return
			}
		}
	}
}

// Stop halts playback. It is a no-op when nothing plays.
func (d *OtoDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *OtoDevice) stopLocked() {
	if d.player != nil {
		d.player.Pause()
		_ = d.player.Close()
		d.player = nil
	}
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.stream = nil
}

// Close stops playback and suspends the device. The oto context itself
// lives until the process exits.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.stopLocked()
	d.closed = true
	return d.context.Suspend()
}
