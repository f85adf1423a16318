package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// NullDevice consumes streamers without producing sound. With realtime set
// it drains at playback speed, so Wait behaves as with a real device.
type NullDevice struct {
	rate     beep.SampleRate
	realtime bool

	mu      sync.Mutex
	stop    chan struct{}
	closed  bool
	plays   int
	samples int
}

// NewNullDevice returns a silent device at rate.
func NewNullDevice(rate beep.SampleRate, realtime bool) *NullDevice {
	return &NullDevice{rate: rate, realtime: realtime}
}

func (d *NullDevice) SampleRate() beep.SampleRate {
	return d.rate
}

func (d *NullDevice) Play(s beep.Streamer) (<-chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}
	d.stopLocked()

	stop := make(chan struct{})
	d.stop = stop
	d.plays++

	done := make(chan struct{})
	go d.drain(s, stop, done)
	return done, nil
}

func (d *NullDevice) drain(s beep.Streamer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([][2]float64, 512)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, ok := s.Stream(buf)

		d.mu.Lock()
		d.samples += n
		d.mu.Unlock()

		if !ok {
			return
		}
		if d.realtime && n > 0 {
			select {
			case <-stop:
				return
			case <-time.After(d.rate.D(n)):
			}
		}
	}
}

func (d *NullDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *NullDevice) stopLocked() {
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

func (d *NullDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.closed = true
	return nil
}

// Plays reports how many streamers were submitted.
func (d *NullDevice) Plays() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plays
}

// Samples reports how many samples were consumed in total.
func (d *NullDevice) Samples() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samples
}
