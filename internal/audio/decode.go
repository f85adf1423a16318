package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// Encoding identifies an artifact's container format.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingWAV
	EncodingMP3
)

func (e Encoding) String() string {
	switch e {
	case EncodingWAV:
		return "wav"
	case EncodingMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Sniff detects the encoding from the first bytes of a file.
func Sniff(header []byte) Encoding {
	switch {
	case len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE":
		return EncodingWAV
	case len(header) >= 3 && string(header[0:3]) == "ID3":
		return EncodingMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return EncodingMP3
	default:
		return EncodingUnknown
	}
}

// Session is one artifact decoded into memory.
type Session struct {
	Path     string
	Encoding Encoding
	Format   beep.Format
	Size     int64 // bytes on disk
	LoadedAt time.Time

	buffer *beep.Buffer
}

// Len returns the number of decoded samples.
func (s *Session) Len() int {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Len()
}

// Duration returns the playing time of the decoded audio.
func (s *Session) Duration() time.Duration {
	return s.Format.SampleRate.D(s.Len())
}

// Streamer returns a fresh streamer over the whole buffer.
func (s *Session) Streamer() beep.StreamSeeker {
	return s.buffer.Streamer(0, s.buffer.Len())
}

// release drops the decoded samples. Streamers already handed out keep
// their own reference until they finish.
func (s *Session) release() {
	s.buffer = nil
}

// Decode reads the artifact at path fully into memory. Every failure is a
// *DecodeError.
func Decode(path string) (*Session, error) {
	session, err := decode(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return session, nil
}

func decode(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		_ = f.Close()
		return nil, ErrEmptyFile
	}

	header := make([]byte, 12)
	n, _ := io.ReadFull(f, header)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	encoding := Sniff(header[:n])
	switch encoding {
	case EncodingWAV:
		streamer, format, err = wav.Decode(f)
	case EncodingMP3:
		streamer, format, err = mp3.Decode(f)
	default:
		_ = f.Close()
		return nil, ErrUnknownEncoding
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	// Closing the streamer closes the file.
	defer func() { _ = streamer.Close() }()

	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: invalid sample rate %d", encoding, format.SampleRate)
	}

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	if buffer.Len() == 0 {
		return nil, ErrNoSamples
	}

	return &Session{
		Path:     path,
		Encoding: encoding,
		Format:   format,
		Size:     info.Size(),
		LoadedAt: time.Now(),
		buffer:   buffer,
	}, nil
}
