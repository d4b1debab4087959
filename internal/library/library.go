package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"recut/internal/fileutil"
	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/services"
)

// Fingerprinter computes frame fingerprints for a video file.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, videoPath string, interval float64) (matching.Fingerprint, error)
}

// Library serves manifest episodes with cached fingerprints. It implements
// matching.Library.
type Library struct {
	manifest      Manifest
	cache         *Cache
	fingerprinter Fingerprinter
	logger        *slog.Logger

	mu     sync.Mutex
	loaded map[string]loadedEpisode
}

type loadedEpisode struct {
	episode matching.Episode
	size    int64
	modTime time.Time
}

var _ matching.Library = (*Library)(nil)

// New constructs a library. cache may be nil for a memory-only cache.
func New(manifest Manifest, cache *Cache, fingerprinter Fingerprinter, logger *slog.Logger) *Library {
	if cache == nil {
		cache = NewCache("", logger)
	}
	return &Library{
		manifest:      manifest,
		cache:         cache,
		fingerprinter: fingerprinter,
		logger:        logging.NewComponentLogger(logger, "library"),
		loaded:        make(map[string]loadedEpisode),
	}
}

// Open loads the manifest at manifestPath and the cache at cachePath.
func Open(manifestPath, cachePath string, fingerprinter Fingerprinter, logger *slog.Logger) (*Library, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return New(manifest, NewCache(cachePath, logger), fingerprinter, logger), nil
}

// Manifest returns the episode declarations.
func (l *Library) Manifest() Manifest { return l.manifest }

// Episodes returns every episode in manifest order. Any episode that cannot be
// read or fingerprinted fails the whole call.
func (l *Library) Episodes(ctx context.Context) ([]matching.Episode, error) {
	out := make([]matching.Episode, 0, len(l.manifest.Episodes))
	for _, decl := range l.manifest.Episodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ep, err := l.load(ctx, decl)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

// Episode returns one episode by id.
func (l *Library) Episode(ctx context.Context, id string) (matching.Episode, error) {
	decl, ok := l.manifest.Lookup(id)
	if !ok {
		return matching.Episode{}, services.Wrap(services.ErrNotFound, "library", "lookup", fmt.Sprintf("episode %q", id), nil)
	}
	return l.load(ctx, decl)
}

func (l *Library) load(ctx context.Context, decl ManifestEpisode) (matching.Episode, error) {
	info, err := os.Stat(decl.Path)
	if err != nil {
		return matching.Episode{}, services.Wrap(services.ErrExternalStep, "library", "stat episode", decl.ID, err)
	}

	l.mu.Lock()
	cached, ok := l.loaded[decl.ID]
	l.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.episode, nil
	}

	hash, err := fileutil.HashFile(decl.Path)
	if err != nil {
		return matching.Episode{}, services.Wrap(services.ErrExternalStep, "library", "hash episode", decl.ID, err)
	}

	var fp matching.Fingerprint
	if entry, hit := l.cache.Lookup(decl.ID, hash, decl.FrameInterval); hit {
		fp = entry.Fingerprint()
	} else {
		if l.fingerprinter == nil {
			return matching.Episode{}, services.Wrap(services.ErrConfiguration, "library", "fingerprint", "no fingerprinter configured for uncached episode "+decl.ID, nil)
		}
		start := time.Now()
		fp, err = l.fingerprinter.Fingerprint(ctx, decl.Path, decl.FrameInterval)
		if err != nil {
			return matching.Episode{}, services.Wrap(services.ErrExternalStep, "library", "fingerprint", decl.ID, err)
		}
		if !fp.Valid() {
			return matching.Episode{}, services.Wrap(services.ErrExternalStep, "library", "fingerprint", "empty fingerprint for "+decl.ID, nil)
		}
		l.logger.Info("fingerprinted library episode",
			logging.String(logging.FieldEventType, "episode_fingerprinted"),
			logging.String("episode_id", decl.ID),
			logging.Int("frames", fp.Len()),
			logging.Duration("elapsed", time.Since(start)))
		if err := l.cache.Store(CacheEntry{EpisodeID: decl.ID, ContentHash: hash, Interval: fp.Interval, Frames: fp.Frames}); err != nil {
			logging.WarnWithContext(l.logger, "failed to persist fingerprint", "fingerprint_cache_store_failed",
				logging.String("episode_id", decl.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "episode will be fingerprinted again next run"))
		}
	}

	duration := decl.Duration
	if duration <= 0 {
		duration = fp.Duration()
	}
	ep := matching.Episode{ID: decl.ID, Title: decl.Title, Duration: duration, Fingerprint: fp}

	l.mu.Lock()
	l.loaded[decl.ID] = loadedEpisode{episode: ep, size: info.Size(), modTime: info.ModTime()}
	l.mu.Unlock()
	return ep, nil
}
