package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// resampleQuality trades CPU for fidelity in beep.Resample.
const resampleQuality = 4

// Adapter loads artifacts and plays them on a Device it owns. It holds at
// most one decoded session; loading a new one releases the old.
type Adapter struct {
	device Device
	logger *log.Logger

	mu      sync.Mutex
	session *Session
	done    <-chan struct{}
	volume  float64
}

// NewAdapter takes ownership of device. Close releases it.
func NewAdapter(device Device) *Adapter {
	return &Adapter{
		device: device,
		logger: log.Default().WithPrefix("audio"),
		volume: 1.0,
	}
}

// SetLogger replaces the adapter's logger.
func (a *Adapter) SetLogger(l *log.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = l
}

// LoadAndPlay decodes the artifact at path, stops whatever is playing and
// submits the new audio. It returns once playback has started; use Wait to
// block until it finishes. A file that cannot be decoded yields a
// *DecodeError and leaves the current session untouched.
func (a *Adapter) LoadAndPlay(path string) error {
	session, err := Decode(path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.device.Stop()
	if a.session != nil {
		a.session.release()
	}
	a.session = session
	a.done = nil

	var s beep.Streamer = session.Streamer()
	if rate := a.device.SampleRate(); rate != session.Format.SampleRate {
		s = beep.Resample(resampleQuality, session.Format.SampleRate, rate, s)
	}
	s = &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   volumeToPower(a.volume),
		Silent:   a.volume <= silenceThreshold,
	}

	done, err := a.device.Play(s)
	if err != nil {
		return fmt.Errorf("submit playback: %w", err)
	}
	a.done = done

	a.logger.Debug("Playing artifact",
		"path", path,
		"encoding", session.Encoding,
		"rate", session.Format.SampleRate,
		"duration", session.Duration(),
		"size", humanize.Bytes(uint64(session.Size)))

	return nil
}

// Wait blocks until the current playback drains or ctx is done.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop halts playback and keeps the session.
func (a *Adapter) Stop() {
	a.device.Stop()
}

// Session returns the loaded session, or nil.
func (a *Adapter) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// SetVolume sets the volume (0.0 to 1.0) for the next playback.
func (a *Adapter) SetVolume(vol float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volume = clampVolume(vol)
}

// Volume returns the current volume.
func (a *Adapter) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

// Close stops playback, releases the session and closes the device.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		a.session.release()
		a.session = nil
	}
	a.done = nil
	return a.device.Close()
}
