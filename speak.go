package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/piper-speak/internal/piper"
	"github.com/dgnsrekt/piper-speak/internal/tts"
)

// speaker is the part of *tts.Controller the input loops use.
type speaker interface {
	Speak(ctx context.Context, text string) (tts.Result, error)
	Restart() error
	EngineState() piper.State
}

func speakOnce(ctx context.Context, s speaker, text string) error {
	res, err := s.Speak(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logResult(res)
	return nil
}

// speakLines speaks each line read from r in order. In interactive mode a
// prompt is written to w, "exit" quits, and failures are reported without
// ending the session; a dead engine is restarted.
func speakLines(ctx context.Context, s speaker, r io.Reader, w io.Writer, interactive bool) error {
	prompt := func() {
		if interactive {
			fmt.Fprint(w, keyword("> "))
		}
	}

	lines := readLines(ctx, r)
	prompt()
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if interactive && strings.EqualFold(line, "exit") {
			return nil
		}
		if line == "" {
			prompt()
			continue
		}

		res, err := s.Speak(ctx, line)
		switch {
		case err == nil:
			logResult(res)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, tts.ErrNothingToSay):
		case !interactive:
			return err
		default:
			fmt.Fprintln(w, errorText(err.Error()))
			if s.EngineState() == piper.StateTerminated {
				if err := s.Restart(); err != nil {
					return err
				}
			}
		}
		prompt()
	}
}

// readLines feeds lines from r until it is exhausted or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Debug("Input closed", "error", err)
		}
	}()
	return out
}

func logResult(res tts.Result) {
	log.Debug("Spoke",
		"request", res.ID,
		"chars", humanize.Comma(int64(len(res.Text))),
		"cached", res.Cached,
		"elapsed", res.Elapsed)
}
