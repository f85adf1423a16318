package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
)

// logConfig is read from the environment (and an optional .env file).
type logConfig struct {
	Debug bool   `env:"PIPER_SPEAK_DEBUG"`
	Level string `env:"PIPER_SPEAK_LOG_LEVEL" envDefault:"info"`
	File  string `env:"PIPER_SPEAK_LOG_FILE"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "piper-speak").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "piper-speak.log"), nil
}

func loadLogConfig() (logConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return logConfig{}, fmt.Errorf("unable to load .env: %w", err)
	}
	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return logConfig{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return cfg, nil
}

// setupLog configures the default logger. Diagnostics go to stderr at the
// configured level; in debug mode everything, including Piper's own output,
// goes to a log file instead.
func setupLog() (func() error, error) {
	cfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(level)

	if !cfg.Debug {
		return func() error { return nil }, nil
	}

	logFile := cfg.File
	if logFile == "" {
		if logFile, err = getLogFilePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
