// Package piper runs the Piper text-to-speech engine as a long-lived child
// process. Text goes in on stdin one line per request; Piper writes the
// artifact to the configured output file and reports completion on stderr.
package piper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// tailSize is how many stderr lines are kept for error reports.
	tailSize = 20

	// maxLineSize bounds a single diagnostic line.
	maxLineSize = 1024 * 1024
)

// Engine owns one Piper process and its pipes. It is not re-entrant: one
// Generate at a time, from one caller.
type Engine struct {
	cfg     Config
	matcher CompletionMatcher
	logger  *log.Logger

	// Process management
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	input  *bufio.Writer
	lines  *bufio.Scanner // stderr
	stdout io.ReadCloser

	state atomic.Int32

	tail []string

	stopOnce sync.Once
	exitErr  error
	drained  chan struct{}
}

// Start launches Piper with the model, config and output paths from cfg and
// takes ownership of its stdin, stderr and stdout.
//
// A missing or unstartable executable yields a *SpawnError; nothing is left
// running in that case.
func Start(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		matcher: cfg.matcher(),
		logger:  cfg.logger(),
		drained: make(chan struct{}),
	}

	cmd := exec.Command(cfg.Binary, cfg.Args()...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Binary: cfg.Binary, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Binary: cfg.Binary, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Binary: cfg.Binary, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	// Start closes every pipe it created when it fails.
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: cfg.Binary, Err: err}
	}

	e.cmd = cmd
	e.stdin = stdin
	e.input = bufio.NewWriter(stdin)
	e.stdout = stdout
	e.lines = bufio.NewScanner(stderr)
	e.lines.Buffer(make([]byte, 0, 4096), maxLineSize)
	e.state.Store(int32(StateRunning))

	go e.drainStdout()

	e.logger.Debug("Process started",
		"pid", cmd.Process.Pid,
		"binary", cfg.Binary,
		"args", cfg.Args())

	return e, nil
}

// Generate writes text as one line to Piper and blocks until a diagnostic
// line matches the completion sentinel. When it returns nil the artifact at
// OutputPath is complete.
//
// text must be non-empty and must not contain line breaks: Piper treats each
// line as a separate utterance.
//
// If stderr closes before the sentinel, Generate returns a
// *StreamClosedError and the engine is terminated. Cancelling ctx or hitting
// RequestTimeout kills the process and terminates the engine as well.
func (e *Engine) Generate(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if strings.ContainsAny(text, "\r\n") {
		return ErrMultiline
	}

	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateAwaitingCompletion)) {
		switch e.State() {
		case StateAwaitingCompletion:
			return ErrBusy
		case StateTerminated:
			return ErrTerminated
		default:
			return ErrNotStarted
		}
	}

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	// Reads on the stderr pipe cannot be interrupted, so cancellation kills
	// the process and lets the read loop see end-of-stream.
	stop := context.AfterFunc(ctx, e.kill)
	defer stop()

	start := time.Now()
	e.logger.Debug("Sending request", "chars", len(text))

	if err := e.send(text); err != nil {
		e.terminate()
		if ctxErr := e.contextError(ctx); ctxErr != nil {
			return ctxErr
		}
		return &StreamClosedError{Tail: e.Tail(), Err: fmt.Errorf("write request: %w", err), ExitErr: e.exitErr}
	}

	for e.lines.Scan() {
		line := strings.ToValidUTF8(e.lines.Text(), "\uFFFD")
		e.remember(line)
		e.logger.Debug(line)

		if !e.matcher.Complete(line) {
			continue
		}

		if !stop() {
			// The kill already fired. The artifact is complete but the
			// process is gone.
			e.terminate()
			return nil
		}
		e.state.CompareAndSwap(int32(StateAwaitingCompletion), int32(StateRunning))
		e.logger.Debug("Request complete", "duration", time.Since(start))
		return nil
	}

	readErr := e.lines.Err()
	e.terminate()

	if ctxErr := e.contextError(ctx); ctxErr != nil {
		return ctxErr
	}
	return &StreamClosedError{Tail: e.Tail(), Err: readErr, ExitErr: e.exitErr}
}

// Shutdown kills the process unconditionally and releases its pipes. It never
// fails and may be called any number of times, including after the process
// has exited on its own.
func (e *Engine) Shutdown() {
	if e == nil || e.cmd == nil {
		return
	}
	e.terminate()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// PID returns the process identifier, or 0 if the process never started.
func (e *Engine) PID() int {
	if e.cmd == nil || e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}

// OutputPath returns where Piper writes the artifact.
func (e *Engine) OutputPath() string {
	return e.cfg.OutputPath
}

// Tail returns a copy of the most recent diagnostic lines.
func (e *Engine) Tail() []string {
	out := make([]string, len(e.tail))
	copy(out, e.tail)
	return out
}

func (e *Engine) send(text string) error {
	if _, err := e.input.WriteString(text); err != nil {
		return err
	}
	if err := e.input.WriteByte('\n'); err != nil {
		return err
	}
	return e.input.Flush()
}

func (e *Engine) remember(line string) {
	if len(e.tail) == tailSize {
		copy(e.tail, e.tail[1:])
		e.tail = e.tail[:tailSize-1]
	}
	e.tail = append(e.tail, line)
}

// contextError maps a done context to the error Generate reports.
func (e *Engine) contextError(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("piper generation canceled: %w", err)
	}
}

// kill sends SIGKILL without waiting. Safe to call from any goroutine.
func (e *Engine) kill() {
	if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		e.logger.Debug("Failed to kill process", "error", err)
	}
}

// terminate kills and reaps the process exactly once.
func (e *Engine) terminate() {
	e.stopOnce.Do(func() {
		e.state.Store(int32(StateTerminated))

		e.kill()
		_ = e.stdin.Close()

		// Wait closes the stderr and stdout pipes after the process exits.
		e.exitErr = e.cmd.Wait()
		<-e.drained

		e.logger.Debug("Process terminated", "pid", e.cmd.Process.Pid, "exit", e.exitErr)
	})
}

// drainStdout keeps the stdout pipe from filling up. Piper prints the output
// path there; nothing else reads it.
func (e *Engine) drainStdout() {
	defer close(e.drained)

	scanner := bufio.NewScanner(e.stdout)
	for scanner.Scan() {
		e.logger.Debug("stdout", "line", scanner.Text())
	}
}
