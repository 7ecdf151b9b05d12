// Package cache stores fetched provider responses on disk so that a rerun
// never spends an API call on data it already holds. Entries are keyed by
// (provider, city, year) and kept both in memory and as JSON files named
// by the key's md5 digest.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"weathercollect/pkg/logger"
	"weathercollect/pkg/weather"
)

// Key identifies one cached response.
type Key struct {
	Provider string
	City     string
	Year     int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Provider, k.City, k.Year)
}

// digest returns the cache file stem for this key.
func (k Key) digest() string {
	sum := md5.Sum([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// entry is the persisted form of one cached response.
type entry struct {
	Provider string           `json:"provider"`
	City     string           `json:"city"`
	Year     int              `json:"year"`
	CachedAt time.Time        `json:"cached_at"`
	Records  []weather.Record `json:"records"`
}

// Cache is a concurrency-safe response cache backed by a directory of
// JSON files.
type Cache struct {
	dir        string
	maxEntries int // in-memory bound; 0 means unbounded
	logger     logger.Logger

	mu      sync.RWMutex
	entries map[string][]weather.Record
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string) (*Cache, error) {
	return NewWithLimit(dir, 0)
}

// NewWithLimit creates a cache whose in-memory tier holds at most
// maxEntries responses. The disk tier is never bounded; an entry dropped
// from memory is simply re-read on its next Get. Zero means unbounded.
func NewWithLimit(dir string, maxEntries int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{
		dir:        dir,
		maxEntries: maxEntries,
		logger:     logger.GetLogger(),
		entries:    make(map[string][]weather.Record),
	}, nil
}

// Get returns the cached records for key, reading from disk on the first
// access. The second return value reports a hit.
func (c *Cache) Get(key Key) ([]weather.Record, bool) {
	digest := key.digest()

	c.mu.RLock()
	records, ok := c.entries[digest]
	c.mu.RUnlock()
	if ok {
		return records, true
	}

	data, err := os.ReadFile(c.path(digest))
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is treated as a miss and will be overwritten
		// by the next Put.
		c.logger.WarnWithFields("Discarding corrupt cache entry", map[string]interface{}{
			"key":   key.String(),
			"error": err.Error(),
		})
		return nil, false
	}

	c.mu.Lock()
	c.remember(digest, e.Records)
	c.mu.Unlock()

	c.logger.DebugWithFields("Cache hit", map[string]interface{}{
		"key":     key.String(),
		"records": len(e.Records),
	})
	return e.Records, true
}

// Put stores records for key, replacing any previous entry.
func (c *Cache) Put(key Key, records []weather.Record) error {
	digest := key.digest()

	e := entry{
		Provider: key.Provider,
		City:     key.City,
		Year:     key.Year,
		CachedAt: time.Now().UTC(),
		Records:  records,
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	// Write through a temp file so a crash never leaves a half-written
	// entry behind.
	path := c.path(digest)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}

	c.mu.Lock()
	c.remember(digest, records)
	c.mu.Unlock()
	return nil
}

// remember stores an entry in the memory tier, evicting an arbitrary entry
// when the bound is hit. Entries are immutable, so which one goes does not
// matter; the evicted one stays on disk. Callers must hold mu.
func (c *Cache) remember(digest string, records []weather.Record) {
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, ok := c.entries[digest]; !ok {
			for evict := range c.entries {
				delete(c.entries, evict)
				break
			}
		}
	}
	c.entries[digest] = records
}

// Clear removes every entry from memory and disk.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string][]weather.Record)
	c.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cache entry: %w", err)
		}
	}
	return nil
}

// Len returns the number of entries on disk.
func (c *Cache) Len() int {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0
	}
	return len(files)
}

func (c *Cache) path(digest string) string {
	return filepath.Join(c.dir, digest+".json")
}
