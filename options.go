package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/piper-speak/internal/audio"
	"github.com/dgnsrekt/piper-speak/internal/cache"
	"github.com/dgnsrekt/piper-speak/internal/piper"
	"github.com/dgnsrekt/piper-speak/internal/tts"
	"github.com/dgnsrekt/piper-speak/utils"
)

// options is the resolved configuration for one run.
type options struct {
	Piper    piper.Config
	Markdown bool

	AudioEnabled bool
	Device       string
	SampleRate   int
	Volume       float64
	Wait         bool

	CacheEnabled bool
	CacheDir     string
	CacheMaxSize int64 // MB
	CacheMaxAge  time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("piper.binary", "")
	v.SetDefault("piper.model", "")
	v.SetDefault("piper.config", "")
	v.SetDefault("piper.output", "")
	v.SetDefault("piper.extra_args", "")
	v.SetDefault("piper.sentinel", piper.DefaultSentinel)
	v.SetDefault("piper.timeout", "0s")

	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.device", audio.DeviceAuto)
	v.SetDefault("audio.sample_rate", int(audio.DefaultSampleRate))
	v.SetDefault("audio.volume", 1.0)
	v.SetDefault("audio.wait", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_size", 256)
	v.SetDefault("cache.max_age", "720h")

	v.SetDefault("markdown", false)
}

// loadOptions reads and checks the configuration. Paths are expanded and
// made absolute so Piper sees the same files regardless of its working
// directory.
func loadOptions(v *viper.Viper) (options, error) {
	extra, err := piper.ParseArgs(v.GetString("piper.extra_args"))
	if err != nil {
		return options{}, err
	}

	binary := utils.ExpandPath(v.GetString("piper.binary"))
	if binary == "" {
		binary = piper.FindBinary()
	}

	model := utils.AbsPath(v.GetString("piper.model"))
	modelConfig := tts.ResolveConfigPath(model, utils.AbsPath(v.GetString("piper.config")))

	output := v.GetString("piper.output")
	if output == "" {
		output = filepath.Join(os.TempDir(), "piper-speak", fmt.Sprintf("output-%d.wav", os.Getpid()))
	}
	output = utils.AbsPath(output)

	timeout := v.GetDuration("piper.timeout")
	if timeout < 0 {
		return options{}, fmt.Errorf("piper timeout must not be negative, got %s", timeout)
	}

	volume := v.GetFloat64("audio.volume")
	if volume < 0 || volume > 1 {
		return options{}, fmt.Errorf("audio volume must be between 0.0 and 1.0, got %.2f", volume)
	}

	device := v.GetString("audio.device")
	switch device {
	case audio.DeviceAuto, audio.DeviceOto, audio.DeviceNull:
	default:
		return options{}, fmt.Errorf("audio device must be auto, oto or null, got %q", device)
	}

	maxCacheSize := v.GetInt64("cache.max_size")
	if maxCacheSize < 1 || maxCacheSize > 10000 {
		return options{}, fmt.Errorf("cache max_size must be between 1 and 10000 MB, got %d", maxCacheSize)
	}

	maxCacheAge := v.GetDuration("cache.max_age")
	if maxCacheAge < 0 {
		return options{}, fmt.Errorf("cache max_age must not be negative, got %v", maxCacheAge)
	}

	cacheDir := utils.AbsPath(v.GetString("cache.dir"))
	if cacheDir == "" {
		dir, err := gap.NewScope(gap.User, "piper-speak").CacheDir()
		if err != nil {
			return options{}, fmt.Errorf("unable to find cache directory: %w", err)
		}
		cacheDir = filepath.Join(dir, "artifacts")
	}

	return options{
		Piper: piper.Config{
			Binary:         binary,
			ModelPath:      model,
			ConfigPath:     modelConfig,
			OutputPath:     output,
			ExtraArgs:      extra,
			Sentinel:       v.GetString("piper.sentinel"),
			RequestTimeout: timeout,
			Logger:         log.Default().WithPrefix("piper"),
		},
		Markdown:     v.GetBool("markdown"),
		AudioEnabled: v.GetBool("audio.enabled"),
		Device:       device,
		SampleRate:   v.GetInt("audio.sample_rate"),
		Volume:       volume,
		Wait:         v.GetBool("audio.wait"),
		CacheEnabled: v.GetBool("cache.enabled"),
		CacheDir:     cacheDir,
		CacheMaxSize: maxCacheSize,
		CacheMaxAge:  maxCacheAge,
	}, nil
}

// newController wires the player, cache and engine described by opts.
func newController(opts options, waitForPlayback bool) (*tts.Controller, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Piper.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}

	var player tts.Player
	if opts.AudioEnabled {
		device, err := audio.NewDevice(opts.Device, beep.SampleRate(opts.SampleRate))
		if err != nil {
			return nil, fmt.Errorf("unable to open audio device: %w", err)
		}
		adapter := audio.NewAdapter(device)
		adapter.SetVolume(opts.Volume)
		player = adapter
	}

	var artifacts tts.Cache
	if opts.CacheEnabled {
		cfg := cache.DefaultConfig(opts.CacheDir)
		cfg.DiskCapacity = opts.CacheMaxSize * 1024 * 1024
		cfg.MaxAge = opts.CacheMaxAge
		c, err := cache.New(cfg)
		if err != nil {
			// Speaking still works without a cache.
			log.Warn("Artifact cache disabled", "error", err)
		} else {
			artifacts = c
		}
	}

	ctrl, err := tts.NewController(tts.Config{
		Piper:           opts.Piper,
		Markdown:        opts.Markdown,
		WaitForPlayback: waitForPlayback && opts.Wait,
	}, player, artifacts)
	if err != nil {
		if player != nil {
			_ = player.Close()
		}
		if artifacts != nil {
			_ = artifacts.Close()
		}
		return nil, err
	}
	return ctrl, nil
}
