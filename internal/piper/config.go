package piper

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"
)

// Config holds everything needed to launch one Piper process. Paths are used
// as given: resolve them before calling Start.
type Config struct {
	Binary     string // Piper executable
	ModelPath  string // .onnx voice model, passed as -m
	ConfigPath string // model .onnx.json, passed as -c
	OutputPath string // artifact Piper writes, passed as -f
	WorkDir    string // working directory of the child, optional

	// ExtraArgs are appended after the model/config/output flags.
	ExtraArgs []string

	// Sentinel is the completion phrase; DefaultSentinel when empty.
	// Ignored when Matcher is set.
	Sentinel string
	Matcher  CompletionMatcher

	// RequestTimeout bounds one Generate call. Zero waits indefinitely,
	// which blocks the caller forever if Piper hangs.
	RequestTimeout time.Duration

	// Logger receives every diagnostic line at debug level.
	Logger *log.Logger
}

// DefaultConfig returns a configuration with the binary looked up in the
// usual places and no model selected.
func DefaultConfig() Config {
	return Config{
		Binary:   FindBinary(),
		Sentinel: DefaultSentinel,
	}
}

// Validate checks the fields Start cannot do without.
func (c Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("%w: binary is required", ErrInvalidConfig)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model path is required", ErrInvalidConfig)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidConfig)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout %v", ErrInvalidConfig, c.RequestTimeout)
	}
	return nil
}

// Args builds the command line: -m model -c config -f output, then ExtraArgs.
// An empty ConfigPath is left out; Piper then reads <model>.json.
func (c Config) Args() []string {
	args := make([]string, 0, 6+len(c.ExtraArgs))
	args = append(args, "-m", c.ModelPath)
	if c.ConfigPath != "" {
		args = append(args, "-c", c.ConfigPath)
	}
	args = append(args, "-f", c.OutputPath)
	return append(args, c.ExtraArgs...)
}

func (c Config) matcher() CompletionMatcher {
	if c.Matcher != nil {
		return c.Matcher
	}
	if c.Sentinel == "" {
		return SentinelMatcher(DefaultSentinel)
	}
	return SentinelMatcher(c.Sentinel)
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default().WithPrefix("piper")
}

// ParseArgs splits a shell-style argument string such as
// "--speaker 2 --length_scale 1.1" into ExtraArgs.
func ParseArgs(s string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse piper args: %w", err)
	}
	return args, nil
}

// FindBinary tries to find the Piper binary in common locations. It returns
// an empty string when none is found.
func FindBinary() string {
	locations := []string{
		"./piper/piper",
		"./piper",
		"piper",
		"/usr/local/bin/piper",
		"/usr/bin/piper",
	}

	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".local", "bin", "piper"),
			filepath.Join(home, "bin", "piper"),
		)
	}

	for _, loc := range locations {
		if path, err := exec.LookPath(loc); err == nil {
			return path
		}
	}

	return ""
}
