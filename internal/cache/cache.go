// Package cache keeps downloaded documents on disk so that reloading a
// remote source can be revalidated instead of downloaded again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const indexVersion = "1"

// Cache is a size-bounded document store keyed by locator.
type Cache struct {
	mu       sync.Mutex
	dir      string
	index    *Index
	maxSize  int64
	maxAge   time.Duration
	strategy EvictionStrategy
	stats    Stats
	log      zerolog.Logger
}

// Index is persisted as index.json next to the cached files.
type Index struct {
	Version string            `json:"version"`
	Entries map[string]*Entry `json:"entries"`
	Updated time.Time         `json:"updated"`
}

// Entry is one cached document.
type Entry struct {
	Key         string            `json:"key"`
	Hash        string            `json:"hash"`
	File        string            `json:"file"`
	Size        int64             `json:"size"`
	Created     time.Time         `json:"created"`
	LastAccess  time.Time         `json:"last_access"`
	AccessCount int               `json:"access_count"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	TotalSize int64 `json:"total_size"`
	Entries   int   `json:"entries"`
}

// EvictionStrategy defines how entries are removed when the cache is full
type EvictionStrategy int

const (
	// LRU removes least recently used entries
	LRU EvictionStrategy = iota
	// FIFO removes oldest entries first
	FIFO
)

// Config holds cache configuration
type Config struct {
	Dir      string           // default: $HOME/.cache/pdfviewer
	MaxSize  int64            // bytes; 0 means unbounded
	MaxAge   time.Duration    // 0 means entries never expire
	Strategy EvictionStrategy // default: LRU
	Logger   zerolog.Logger
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return Config{
		Dir:      filepath.Join(dir, "pdfviewer"),
		MaxSize:  256 << 20,
		MaxAge:   7 * 24 * time.Hour,
		Strategy: LRU,
		Logger:   zerolog.Nop(),
	}
}

// New opens the cache in config.Dir, creating it if needed. A missing or
// unreadable index starts the cache empty.
func New(config Config) (*Cache, error) {
	if config.Dir == "" {
		config.Dir = DefaultConfig().Dir
	}
	if err := os.MkdirAll(filepath.Join(config.Dir, "documents"), 0o755); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	c := &Cache{
		dir:      config.Dir,
		maxSize:  config.MaxSize,
		maxAge:   config.MaxAge,
		strategy: config.Strategy,
		log:      config.Logger.With().Str("component", "cache").Logger(),
		index:    newIndex(),
	}
	if err := c.loadIndex(); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn().Err(err).Msg("discarding unreadable index")
		c.index = newIndex()
	}
	c.mu.Lock()
	c.expireLocked()
	c.mu.Unlock()
	return c, nil
}

func newIndex() *Index {
	return &Index{
		Version: indexVersion,
		Entries: make(map[string]*Entry),
		Updated: time.Now(),
	}
}

// Get returns the cached document for key and the metadata stored with it.
func (c *Cache) Get(key string) ([]byte, map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index.Entries[key]
	if !ok || c.isExpired(entry) {
		if ok {
			c.removeLocked(key)
		}
		c.stats.Misses++
		return nil, nil, false
	}

	data, err := os.ReadFile(c.path(entry))
	if err != nil || c.hash(data) != entry.Hash {
		c.log.Debug().Str("key", key).Msg("dropping damaged entry")
		c.removeLocked(key)
		c.stats.Misses++
		return nil, nil, false
	}

	entry.LastAccess = time.Now()
	entry.AccessCount++
	c.stats.Hits++
	c.saveLocked()
	return data, cloneMeta(entry.Meta), true
}

// Put stores data under key, replacing any previous entry.
func (c *Cache) Put(key string, data []byte, meta map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := c.hash(data)
	size := int64(len(data))
	if c.maxSize > 0 && size > c.maxSize {
		return fmt.Errorf("cache: %d bytes exceeds the cache size", size)
	}

	if old, ok := c.index.Entries[key]; ok {
		if old.Hash == hash {
			old.Meta = cloneMeta(meta)
			old.LastAccess = time.Now()
			return c.saveLocked()
		}
		c.removeLocked(key)
	}
	c.evictLocked(size)

	entry := &Entry{
		Key:        key,
		Hash:       hash,
		File:       hash[:16] + ".pdf",
		Size:       size,
		Created:    time.Now(),
		LastAccess: time.Now(),
		Meta:       cloneMeta(meta),
	}
	if err := os.WriteFile(c.path(entry), data, 0o644); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	c.index.Entries[key] = entry
	c.stats.TotalSize += size
	c.stats.Entries = len(c.index.Entries)
	return c.saveLocked()
}

// Delete removes key.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
	return c.saveLocked()
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.index.Entries {
		c.removeLocked(key)
	}
	return c.saveLocked()
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close persists the index.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Cache) path(e *Entry) string {
	return filepath.Join(c.dir, "documents", e.File)
}

func (c *Cache) isExpired(e *Entry) bool {
	return c.maxAge > 0 && time.Since(e.Created) > c.maxAge
}

func (c *Cache) expireLocked() {
	for key, entry := range c.index.Entries {
		if c.isExpired(entry) {
			c.removeLocked(key)
		}
	}
}

// evictLocked frees room for needed bytes.
func (c *Cache) evictLocked(needed int64) {
	if c.maxSize <= 0 {
		return
	}
	for c.stats.TotalSize+needed > c.maxSize && len(c.index.Entries) > 0 {
		var victim *Entry
		for _, e := range c.index.Entries {
			if victim == nil || c.older(e, victim) {
				victim = e
			}
		}
		c.removeLocked(victim.Key)
		c.stats.Evictions++
	}
}

func (c *Cache) older(a, b *Entry) bool {
	if c.strategy == FIFO {
		return a.Created.Before(b.Created)
	}
	return a.LastAccess.Before(b.LastAccess)
}

func (c *Cache) removeLocked(key string) {
	entry, ok := c.index.Entries[key]
	if !ok {
		return
	}
	delete(c.index.Entries, key)
	c.stats.TotalSize -= entry.Size
	c.stats.Entries = len(c.index.Entries)

	// Identical documents under two keys share a file.
	for _, other := range c.index.Entries {
		if other.File == entry.File {
			return
		}
	}
	if err := os.Remove(c.path(entry)); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn().Err(err).Str("file", entry.File).Msg("failed to remove cached document")
	}
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(c.dir, "index.json"))
	if err != nil {
		return err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return err
	}
	if index.Version != indexVersion || index.Entries == nil {
		return fmt.Errorf("unsupported index version %q", index.Version)
	}
	c.index = &index
	for _, e := range index.Entries {
		c.stats.TotalSize += e.Size
	}
	c.stats.Entries = len(index.Entries)
	return nil
}

func (c *Cache) saveLocked() error {
	c.index.Updated = time.Now()
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, "index.json"), data, 0o644)
}

func (c *Cache) hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func cloneMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
