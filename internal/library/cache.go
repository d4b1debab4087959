package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"recut/internal/fileutil"
	"recut/internal/logging"
	"recut/internal/matching"
)

// CacheEntry is a cached fingerprint for one episode file.
type CacheEntry struct {
	EpisodeID   string    `json:"episode_id"`
	ContentHash string    `json:"content_hash"`
	Interval    float64   `json:"interval"`
	Frames      []uint64  `json:"frames"`
	CachedAt    time.Time `json:"cached_at"`
}

// Fingerprint returns the cached frames as a matching fingerprint.
func (e CacheEntry) Fingerprint() matching.Fingerprint {
	return matching.Fingerprint{Interval: e.Interval, Frames: append([]uint64(nil), e.Frames...)}
}

// Cache provides thread-safe access to the fingerprint cache file.
type Cache struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewCache opens the cache at path. An empty path yields a memory-only cache.
// A corrupt file is logged and the cache starts empty.
func NewCache(path string, logger *slog.Logger) *Cache {
	logger = logging.NewComponentLogger(logger, "fingerprint-cache")
	c := &Cache{
		path:    path,
		logger:  logger,
		entries: make(map[string]CacheEntry),
	}
	if path == "" {
		return c
	}
	if err := c.load(); err != nil {
		logger.Warn("failed to load fingerprint cache",
			logging.String(logging.FieldEventType, "fingerprint_cache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "library episodes will be fingerprinted again"))
	}
	return c
}

// Lookup returns the entry for episodeID if it was computed from content with
// the given hash at the given interval.
func (c *Cache) Lookup(episodeID, contentHash string, interval float64) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[strings.TrimSpace(episodeID)]
	if !ok || entry.ContentHash != contentHash || entry.Interval != interval {
		return CacheEntry{}, false
	}
	return entry, true
}

// Store adds or replaces an entry and persists the cache.
func (c *Cache) Store(entry CacheEntry) error {
	entry.EpisodeID = strings.TrimSpace(entry.EpisodeID)
	if entry.EpisodeID == "" {
		return errors.New("episode id cannot be empty")
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.EpisodeID] = entry
	if c.path == "" {
		return nil
	}
	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Debug("cached episode fingerprint",
		logging.String("episode_id", entry.EpisodeID),
		logging.Int("frames", len(entry.Frames)))
	return nil
}

// Remove drops an entry.
func (c *Cache) Remove(episodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	episodeID = strings.TrimSpace(episodeID)
	if _, ok := c.entries[episodeID]; !ok {
		return fmt.Errorf("episode %q not found in cache", episodeID)
	}
	delete(c.entries, episodeID)
	if c.path == "" {
		return nil
	}
	return c.save()
}

// Count returns the number of cached episodes.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.EpisodeID) != "" {
			c.entries[entry.EpisodeID] = entry
		}
	}
	c.logger.Debug("loaded fingerprint cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))
	return nil
}

func (c *Cache) save() error {
	entries := make([]CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EpisodeID < entries[j].EpisodeID
	})
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	return fileutil.WriteFileAtomic(c.path, data, 0o644)
}
