// Package tts runs the speak pipeline: normalize text, synthesize it with
// Piper (or restore it from the cache), then play the artifact.
package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/piper-speak/internal/cache"
	"github.com/dgnsrekt/piper-speak/internal/piper"
)

// Player plays artifacts. *audio.Adapter implements it.
type Player interface {
	LoadAndPlay(path string) error
	Wait(ctx context.Context) error
	Close() error
}

// Cache stores artifacts by key. *cache.ArtifactCache implements it.
type Cache interface {
	Restore(key, dst string) (bool, error)
	Store(key, src string) error
	Close() error
}

// Config configures a Controller.
type Config struct {
	Piper piper.Config

	// Markdown strips markdown formatting before synthesis.
	Markdown bool

	// WaitForPlayback makes Speak return only after playback finished.
	WaitForPlayback bool
}

// Result describes one completed Speak.
type Result struct {
	ID       string
	Text     string // normalized text sent to Piper
	Artifact string
	Cached   bool
	Elapsed  time.Duration
}

// Stats tracks controller activity.
type Stats struct {
	Requests  int64
	CacheHits int64
	Failures  int64
}

// Controller owns one Piper engine plus the player and cache it feeds.
// Requests are served one at a time.
type Controller struct {
	cfg    Config
	player Player // nil disables playback
	cache  Cache  // nil disables caching
	logger *log.Logger

	mu     sync.Mutex
	engine *piper.Engine
	stats  Stats
	closed bool
}

// NewController starts Piper and takes ownership of player and cache, either
// of which may be nil. If Piper cannot be started the caller keeps ownership.
func NewController(cfg Config, player Player, c Cache) (*Controller, error) {
	ctrl := &Controller{
		cfg:    cfg,
		player: player,
		cache:  c,
		logger: log.Default().WithPrefix("tts"),
	}

	engine, err := piper.Start(cfg.Piper)
	if err != nil {
		return nil, fmt.Errorf("failed to start piper: %w", err)
	}
	ctrl.engine = engine

	return ctrl, nil
}

// Speak synthesizes text and plays it. Multi-line text is joined into one
// line; text that normalizes to nothing yields ErrNothingToSay.
//
// A synthesis error that leaves the engine terminated (see piper.IsFatal)
// makes every later Speak fail until Restart is called.
func (c *Controller) Speak(ctx context.Context, text string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Result{}, ErrClosed
	}

	start := time.Now()
	res := Result{
		ID:       uuid.NewString(),
		Text:     Normalize(text, c.cfg.Markdown),
		Artifact: c.engine.OutputPath(),
	}
	if res.Text == "" {
		return res, ErrNothingToSay
	}

	logger := c.logger.With("request", res.ID[:8])
	c.stats.Requests++

	var key string
	if c.cache != nil {
		voice := cache.Voice{
			Model:  c.cfg.Piper.ModelPath,
			Config: ResolveConfigPath(c.cfg.Piper.ModelPath, c.cfg.Piper.ConfigPath),
		}
		key = cache.Key(voice, c.cfg.Piper.ExtraArgs, res.Text)
		hit, err := c.cache.Restore(key, res.Artifact)
		if err != nil {
			logger.Warn("Cache restore failed", "error", err)
		}
		res.Cached = hit
	}

	if res.Cached {
		c.stats.CacheHits++
	} else {
		if err := c.engine.Generate(ctx, res.Text); err != nil {
			c.stats.Failures++
			return res, fmt.Errorf("synthesize: %w", err)
		}
		if c.cache != nil {
			if err := c.cache.Store(key, res.Artifact); err != nil {
				logger.Warn("Failed to cache artifact", "error", err)
			}
		}
	}

	logger.Debug("Artifact ready",
		"cached", res.Cached,
		"chars", len(res.Text),
		"elapsed", time.Since(start))

	if c.player != nil {
		if err := c.player.LoadAndPlay(res.Artifact); err != nil {
			c.stats.Failures++
			return res, fmt.Errorf("playback: %w", err)
		}
		if c.cfg.WaitForPlayback {
			if err := c.player.Wait(ctx); err != nil {
				return res, fmt.Errorf("playback: %w", err)
			}
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// Wait blocks until the current playback finishes.
func (c *Controller) Wait(ctx context.Context) error {
	if c.player == nil {
		return nil
	}
	return c.player.Wait(ctx)
}

// Restart replaces the engine with a fresh Piper process.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.engine.Shutdown()
	engine, err := piper.Start(c.cfg.Piper)
	if err != nil {
		return fmt.Errorf("failed to restart piper: %w", err)
	}
	c.engine = engine
	c.logger.Info("Piper restarted", "pid", engine.PID())
	return nil
}

// EngineState returns the state of the current engine.
func (c *Controller) EngineState() piper.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.State()
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close shuts the engine down and closes the player and cache. It is safe
// to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.engine.Shutdown()

	var errs []error
	if c.player != nil {
		if err := c.player.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close player: %w", err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}

	c.logger.Debug("Controller closed",
		"requests", c.stats.Requests,
		"cache_hits", c.stats.CacheHits,
		"failures", c.stats.Failures)

	return errors.Join(errs...)
}
