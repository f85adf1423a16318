package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// tone streams n samples of a constant level.
func tone(n int, level float64) beep.Streamer {
	left := n
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		k := min(len(samples), left)
		for i := range samples[:k] {
			samples[i] = [2]float64{level, level}
		}
		left -= k
		return k, true
	})
}

func writeWAV(t *testing.T, path string, rate beep.SampleRate, samples int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	format := beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, tone(samples, 0.25), format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Encoding
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVE"), EncodingWAV},
		{"riff without wave", []byte("RIFF\x24\x00\x00\x00AVI "), EncodingUnknown},
		{"id3", []byte("ID3\x04\x00"), EncodingMP3},
		{"frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, EncodingMP3},
		{"text", []byte("hello world!"), EncodingUnknown},
		{"short", []byte("RI"), EncodingUnknown},
		{"empty", nil, EncodingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.header); got != tt.want {
				t.Errorf("Sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	writeWAV(t, path, 22050, 2205)

	session, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if session.Encoding != EncodingWAV {
		t.Errorf("Encoding = %v, want wav", session.Encoding)
	}
	if session.Format.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", session.Format.SampleRate)
	}
	if session.Len() != 2205 {
		t.Errorf("Len() = %d, want 2205", session.Len())
	}
	if got := session.Duration().Milliseconds(); got != 100 {
		t.Errorf("Duration() = %dms, want 100ms", got)
	}
	if session.Size == 0 {
		t.Error("Size not recorded")
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "text.wav")
	if err := os.WriteFile(text, []byte("this is not audio at all"), 0o600); err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(dir, "truncated.wav")
	if err := os.WriteFile(truncated, []byte("RIFF\x24\x00\x00\x00WAVE"), 0o600); err != nil {
		t.Fatal(err)
	}
	silent := filepath.Join(dir, "silent.wav")
	writeWAV(t, silent, 22050, 0)

	tests := []struct {
		name  string
		path  string
		cause error
	}{
		{"missing", filepath.Join(dir, "missing.wav"), os.ErrNotExist},
		{"empty", empty, ErrEmptyFile},
		{"unknown encoding", text, ErrUnknownEncoding},
		{"truncated header", truncated, nil},
		{"no samples", silent, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := Decode(tt.path)
			if err == nil {
				t.Fatalf("Decode() = %v, want error", session)
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("error %v does not match ErrDecode", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Path != tt.path {
				t.Errorf("error %v is not a DecodeError for %s", err, tt.path)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("error %v does not match %v", err, tt.cause)
			}
		})
	}
}

func TestEncodingString(t *testing.T) {
	if EncodingWAV.String() != "wav" || EncodingMP3.String() != "mp3" || Encoding(9).String() != "unknown" {
		t.Error("unexpected encoding names")
	}
}
