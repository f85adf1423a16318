package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Config configures an ArtifactCache.
type Config struct {
	Dir              string // disk store location
	DiskCapacity     int64  // bytes, compressed
	MemoryCapacity   int64  // bytes, 0 disables the memory tier
	CompressionLevel int    // zstd level

	// MaxAge expires entries stored longer ago. Zero keeps them until
	// evicted for space.
	MaxAge time.Duration
}

// DefaultConfig returns sensible defaults for artifact caching in dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		DiskCapacity:     256 * 1024 * 1024, // 256MB
		MemoryCapacity:   16 * 1024 * 1024,  // 16MB
		CompressionLevel: 3,
	}
}

// ArtifactCache maps synthesis inputs to the artifact Piper produced for
// them. Lookups go through memory first, then disk.
type ArtifactCache struct {
	memory *MemoryCache // nil when disabled
	disk   *DiskCache
	maxAge time.Duration
	logger *log.Logger
}

// New opens the cache described by cfg.
func New(cfg Config) (*ArtifactCache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}

	disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	c := &ArtifactCache{
		disk:   disk,
		maxAge: cfg.MaxAge,
		logger: log.Default().WithPrefix("cache"),
	}
	if cfg.MemoryCapacity > 0 {
		c.memory = NewMemoryCache(cfg.MemoryCapacity)
	}

	if _, err := c.Expire(); err != nil {
		c.logger.Warn("Failed to expire old artifacts", "error", err)
	}

	stats := disk.Stats()
	c.logger.Debug("Cache opened",
		"dir", cfg.Dir,
		"items", stats.ItemCount,
		"size", humanize.Bytes(uint64(stats.Size)),
		"capacity", humanize.Bytes(uint64(cfg.DiskCapacity)))

	return c, nil
}

// Voice names the model files a request is synthesized with.
type Voice struct {
	Model  string // .onnx
	Config string // .onnx.json
}

// Key identifies the artifact for text spoken with a voice and extra
// arguments. Each voice file contributes its size and modification time, so
// a model replaced at the same path gets new keys.
func Key(voice Voice, args []string, text string) string {
	h := sha256.New()
	for _, part := range []string{
		voice.Model, stamp(voice.Model),
		voice.Config, stamp(voice.Config),
		strings.Join(args, "\x1f"),
		text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stamp describes the file at path, or returns "" when it cannot be read.
func stamp(path string) string {
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())
}

// Restore writes the cached artifact for key to dst. It reports false when
// nothing is cached.
func (c *ArtifactCache) Restore(key, dst string) (bool, error) {
	data, ok := c.get(key)
	if !ok {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("restore artifact: %w", err)
	}
	if err := writeFileAtomic(dst, data); err != nil {
		return false, fmt.Errorf("restore artifact: %w", err)
	}

	c.logger.Debug("Cache hit", "key", short(key), "size", humanize.Bytes(uint64(len(data))))
	return true, nil
}

// Store saves the artifact at src under key.
func (c *ArtifactCache) Store(key, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("store artifact: %s is empty", src)
	}

	if err := c.disk.Put(key, data); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	if c.memory != nil {
		// Too large for memory is fine; disk has it.
		_ = c.memory.Put(key, data)
	}

	c.logger.Debug("Cached artifact", "key", short(key), "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// Delete forgets key in both tiers.
func (c *ArtifactCache) Delete(key string) error {
	if c.memory != nil {
		c.memory.Delete(key)
	}
	return c.disk.Delete(key)
}

// Clear empties both tiers.
func (c *ArtifactCache) Clear() error {
	if c.memory != nil {
		c.memory.Clear()
	}
	return c.disk.Clear()
}

// Expire drops entries older than MaxAge from both tiers and reports how
// many disk entries went. It does nothing when MaxAge is zero.
func (c *ArtifactCache) Expire() (int, error) {
	if c.maxAge <= 0 {
		return 0, nil
	}
	if c.memory != nil {
		c.memory.Prune(c.maxAge)
	}

	n, err := c.disk.RemoveOlderThan(time.Now().Add(-c.maxAge))
	if n > 0 {
		c.logger.Debug("Expired artifacts", "count", n, "max_age", c.maxAge)
	}
	return n, err
}

// Stats returns disk statistics with hits from either tier counted.
func (c *ArtifactCache) Stats() Stats {
	stats := c.disk.Stats()
	if c.memory != nil {
		stats.Hits += c.memory.Stats().Hits
	}
	return stats
}

// Close persists the disk index.
func (c *ArtifactCache) Close() error {
	if err := c.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (c *ArtifactCache) get(key string) ([]byte, bool) {
	if c.memory != nil {
		if data, ok := c.memory.Get(key); ok {
			return data, true
		}
	}

	data, ok := c.disk.Get(key)
	if !ok {
		return nil, false
	}
	if c.memory != nil {
		_ = c.memory.Put(key, data)
	}
	return data, true
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
