package audio

import (
	"encoding/binary"
	"io"

	"github.com/gopxl/beep/v2"
)

const (
	channelCount   = 2
	bytesPerSample = 2
	frameSize      = channelCount * bytesPerSample
)

// pcmReader renders a streamer as signed 16-bit little-endian stereo.
type pcmReader struct {
	s   beep.Streamer
	buf [][2]float64
	err error
}

func newPCMReader(s beep.Streamer) *pcmReader {
	return &pcmReader{s: s, buf: make([][2]float64, 512)}
}

func (r *pcmReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	frames := len(p) / frameSize
	if frames == 0 {
		return 0, nil
	}
	if frames > len(r.buf) {
		frames = len(r.buf)
	}

	n, ok := r.s.Stream(r.buf[:frames])
	for i := 0; i < n; i++ {
		for c := 0; c < channelCount; c++ {
			off := i*frameSize + c*bytesPerSample
			binary.LittleEndian.PutUint16(p[off:], uint16(toInt16(r.buf[i][c])))
		}
	}

	if !ok {
		r.err = io.EOF
		if err := r.s.Err(); err != nil {
			r.err = err
		}
		if n == 0 {
			return 0, r.err
		}
	}
	return n * frameSize, nil
}

func toInt16(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32767
	default:
		return int16(v * 32767)
	}
}
