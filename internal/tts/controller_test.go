package tts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/dgnsrekt/piper-speak/internal/audio"
	"github.com/dgnsrekt/piper-speak/internal/cache"
	"github.com/dgnsrekt/piper-speak/internal/piper"
)

// TestMain lets the test binary stand in for Piper when
// GO_WANT_HELPER_PROCESS is set.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		os.Exit(fakePiper(os.Getenv("FAKE_PIPER_MODE"), os.Args[1:]))
	}
	os.Exit(m.Run())
}

// fakePiper writes a short WAV per stdin line and records every request in
// FAKE_PIPER_LOG.
func fakePiper(mode string, args []string) int {
	var output string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-f" {
			output = args[i+1]
		}
	}

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		record(in.Text())

		if mode == "crash-first" {
			marker := os.Getenv("FAKE_PIPER_MARKER")
			if _, err := os.Stat(marker); err != nil {
				_ = os.WriteFile(marker, nil, 0o600)
				fmt.Fprintln(os.Stderr, "Segmentation fault")
				return 139
			}
		}

		var err error
		if mode == "garbage" {
			err = os.WriteFile(output, []byte("not a wav file"), 0o644)
		} else {
			err = writeWAV(output, 2205)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 2
		}
		fmt.Fprintln(os.Stderr, "Real-time factor: 0.05 (infer=0.005 sec, audio=0.1 sec)")
	}
	return 0
}

func record(line string) {
	f, err := os.OpenFile(os.Getenv("FAKE_PIPER_LOG"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}

func writeWAV(path string, samples int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	left := samples
	tone := beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		n := min(len(buf), left)
		for i := range buf[:n] {
			buf[i] = [2]float64{0.1, 0.1}
		}
		left -= n
		return n, true
	})
	format := beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, tone, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type fixture struct {
	ctrl   *Controller
	device *audio.NullDevice
	dir    string
	log    string
}

// requests returns the lines the fake Piper received.
func (f *fixture) requests(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func newFixture(t *testing.T, mode string, withCache bool, mutate ...func(*Config)) *fixture {
	t.Helper()

	var cacheDir string
	if withCache {
		cacheDir = filepath.Join(t.TempDir(), "cache")
	}
	return newCachedFixture(t, mode, cacheDir, mutate...)
}

// newCachedFixture is newFixture with the artifact cache in cacheDir, or
// without a cache when cacheDir is empty.
func newCachedFixture(t *testing.T, mode, cacheDir string, mutate ...func(*Config)) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{dir: dir, log: filepath.Join(dir, "requests.log")}

	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("FAKE_PIPER_MODE", mode)
	t.Setenv("FAKE_PIPER_LOG", f.log)
	t.Setenv("FAKE_PIPER_MARKER", filepath.Join(dir, "crashed"))

	cfg := Config{
		Piper: piper.Config{
			Binary:     os.Args[0],
			ModelPath:  filepath.Join(dir, "voice.onnx"),
			OutputPath: filepath.Join(dir, "sample.wav"),
		},
		WaitForPlayback: true,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	f.device = audio.NewNullDevice(22050, false)
	player := audio.NewAdapter(f.device)

	var c Cache
	if cacheDir != "" {
		ac, err := cache.New(cache.DefaultConfig(cacheDir))
		if err != nil {
			t.Fatal(err)
		}
		c = ac
	}

	ctrl, err := NewController(cfg, player, c)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	f.ctrl = ctrl
	return f
}

func TestSpeakHelloWorld(t *testing.T) {
	f := newFixture(t, "ok", false)

	res, err := f.ctrl.Speak(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	if res.ID == "" || res.Cached {
		t.Errorf("unexpected result %+v", res)
	}
	info, err := os.Stat(res.Artifact)
	if err != nil || info.Size() == 0 {
		t.Fatalf("artifact missing or empty: %v", err)
	}
	if f.device.Plays() != 1 {
		t.Errorf("Plays() = %d, want 1", f.device.Plays())
	}
	if f.device.Samples() != 2205 {
		t.Errorf("Samples() = %d, want 2205", f.device.Samples())
	}
	if got := f.requests(t); len(got) != 1 || got[0] != "Hello world" {
		t.Errorf("requests = %q", got)
	}
}

func TestSpeakSequential(t *testing.T) {
	f := newFixture(t, "ok", false)

	for _, text := range []string{"one", "two"} {
		if _, err := f.ctrl.Speak(context.Background(), text); err != nil {
			t.Fatalf("Speak(%q) error = %v", text, err)
		}
	}

	if f.device.Plays() != 2 {
		t.Errorf("Plays() = %d, want 2", f.device.Plays())
	}
	if got := f.requests(t); strings.Join(got, ",") != "one,two" {
		t.Errorf("requests = %q, want [one two]", got)
	}
	if f.ctrl.EngineState() != piper.StateRunning {
		t.Errorf("EngineState() = %s, want running", f.ctrl.EngineState())
	}
}

func TestSpeakNormalizesText(t *testing.T) {
	f := newFixture(t, "ok", false, func(c *Config) { c.Markdown = true })

	res, err := f.ctrl.Speak(context.Background(), "# Hi\n\nThis is **bold**\nand split.")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := "Hi. This is bold and split."
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if got := f.requests(t); len(got) != 1 || got[0] != want {
		t.Errorf("requests = %q, want one line %q", got, want)
	}
}

func TestSpeakNothingToSay(t *testing.T) {
	f := newFixture(t, "ok", false)

	for _, text := range []string{"", "   ", "\n\t\n"} {
		if _, err := f.ctrl.Speak(context.Background(), text); !errors.Is(err, ErrNothingToSay) {
			t.Errorf("Speak(%q) error = %v, want ErrNothingToSay", text, err)
		}
	}
	if got := f.requests(t); len(got) != 0 {
		t.Errorf("requests sent for empty text: %q", got)
	}
}

func TestSpeakUsesCache(t *testing.T) {
	f := newFixture(t, "ok", true)

	first, err := f.ctrl.Speak(context.Background(), "cache me")
	if err != nil {
		t.Fatalf("first Speak() error = %v", err)
	}
	second, err := f.ctrl.Speak(context.Background(), "cache  me")
	if err != nil {
		t.Fatalf("second Speak() error = %v", err)
	}

	if first.Cached || !second.Cached {
		t.Errorf("cached = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if got := f.requests(t); len(got) != 1 {
		t.Errorf("Piper received %d requests, want 1", len(got))
	}
	if f.device.Plays() != 2 {
		t.Errorf("Plays() = %d, want 2", f.device.Plays())
	}

	stats := f.ctrl.Stats()
	if stats.Requests != 2 || stats.CacheHits != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestSpeakCacheSeparatesModelConfigs(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "cache")
	voices := t.TempDir()
	model := filepath.Join(voices, "voice.onnx")
	slow := filepath.Join(voices, "slow.onnx.json")
	fast := filepath.Join(voices, "fast.onnx.json")
	for path, content := range map[string]string{
		model: "model",
		slow:  `{"inference": {"length_scale": 1.5}}`,
		fast:  `{"inference": {"length_scale": 0.8}}`,
	} {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	speak := func(configPath string) Result {
		t.Helper()
		f := newCachedFixture(t, "ok", shared, func(c *Config) {
			c.Piper.ModelPath = model
			c.Piper.ConfigPath = configPath
		})
		res, err := f.ctrl.Speak(context.Background(), "Hello world")
		if err != nil {
			t.Fatalf("Speak() with %s error = %v", filepath.Base(configPath), err)
		}
		if err := f.ctrl.Close(); err != nil {
			t.Fatal(err)
		}
		return res
	}

	if res := speak(slow); res.Cached {
		t.Error("first request with slow.onnx.json was served from the cache")
	}
	if res := speak(fast); res.Cached {
		t.Error("fast.onnx.json got the artifact synthesized with slow.onnx.json")
	}
	if res := speak(slow); !res.Cached {
		t.Error("repeating the slow.onnx.json request missed the cache")
	}
}

func TestSpeakStreamClosedAndRestart(t *testing.T) {
	f := newFixture(t, "crash-first", false)

	_, err := f.ctrl.Speak(context.Background(), "Hello")
	if !errors.Is(err, piper.ErrStreamClosed) {
		t.Fatalf("Speak() error = %v, want ErrStreamClosed", err)
	}
	if !piper.IsFatal(err) {
		t.Error("stream closed should be fatal")
	}
	if f.ctrl.EngineState() != piper.StateTerminated {
		t.Errorf("EngineState() = %s, want terminated", f.ctrl.EngineState())
	}
	if f.device.Plays() != 0 {
		t.Error("playback attempted after failed synthesis")
	}

	if _, err := f.ctrl.Speak(context.Background(), "Hello"); !errors.Is(err, piper.ErrTerminated) {
		t.Errorf("Speak() on terminated engine error = %v, want ErrTerminated", err)
	}

	if err := f.ctrl.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if _, err := f.ctrl.Speak(context.Background(), "Hello again"); err != nil {
		t.Fatalf("Speak() after restart error = %v", err)
	}
	if f.device.Plays() != 1 {
		t.Errorf("Plays() = %d, want 1", f.device.Plays())
	}
	if f.ctrl.Stats().Failures != 2 {
		t.Errorf("Failures = %d, want 2", f.ctrl.Stats().Failures)
	}
}

func TestSpeakDecodeError(t *testing.T) {
	f := newFixture(t, "garbage", false)

	_, err := f.ctrl.Speak(context.Background(), "Hello")
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("Speak() error = %v, want ErrDecode", err)
	}
	// The engine is fine; only playback failed.
	if f.ctrl.EngineState() != piper.StateRunning {
		t.Errorf("EngineState() = %s, want running", f.ctrl.EngineState())
	}
}

func TestSpeakCanceledWhileWaiting(t *testing.T) {
	f := newFixture(t, "ok", false)
	f.ctrl.player = audio.NewAdapter(audio.NewNullDevice(22050, true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Synthesis and playback never start on a dead context, or Wait
	// reports the cancellation.
	if _, err := f.ctrl.Speak(ctx, "Hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("Speak() error = %v, want context.Canceled", err)
	}
}

func TestSpeakWithoutPlayer(t *testing.T) {
	f := newFixture(t, "ok", false)
	_ = f.ctrl.player.Close()
	f.ctrl.player = nil

	if _, err := f.ctrl.Speak(context.Background(), "silent"); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if err := f.ctrl.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	f := newFixture(t, "ok", true)

	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := f.ctrl.Speak(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Speak() after Close error = %v, want ErrClosed", err)
	}
	if err := f.ctrl.Restart(); !errors.Is(err, ErrClosed) {
		t.Errorf("Restart() after Close error = %v, want ErrClosed", err)
	}
	if f.ctrl.EngineState() != piper.StateTerminated {
		t.Errorf("EngineState() = %s, want terminated", f.ctrl.EngineState())
	}
}

func TestNewControllerSpawnError(t *testing.T) {
	cfg := Config{Piper: piper.Config{
		Binary:     filepath.Join(t.TempDir(), "no-such-piper"),
		ModelPath:  filepath.Join(t.TempDir(), "voice.onnx"),
		OutputPath: filepath.Join(t.TempDir(), "out.wav"),
	}}
	_, err := NewController(cfg, nil, nil)
	if !errors.Is(err, piper.ErrSpawn) {
		t.Errorf("NewController() error = %v, want ErrSpawn", err)
	}
}

func TestSpeakTimeout(t *testing.T) {
	// Generous timeout: the fake answers immediately.
	f := newFixture(t, "ok", false, func(c *Config) { c.Piper.RequestTimeout = 10 * time.Second })
	if _, err := f.ctrl.Speak(context.Background(), "quick"); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
}
