package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"recut/internal/logging"
	"recut/internal/services"
)

// SceneInput is one scene to match.
type SceneInput struct {
	Index       int
	Fingerprint Fingerprint
}

// ProgressFunc is invoked once per classified scene, serialized. Returning an
// error aborts the run.
type ProgressFunc func(done, total int, result Result) error

// Matcher scores scenes against the source library.
type Matcher struct {
	policy  Policy
	workers int
	logger  *slog.Logger
}

// Option customises the Matcher.
type Option func(*Matcher)

// WithPolicy overrides the matching thresholds and scan bounds.
func WithPolicy(p Policy) Option {
	return func(m *Matcher) {
		m.policy = p.normalized()
	}
}

// WithWorkers bounds the number of concurrent window scans.
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLogger attaches a logger; the default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher constructs a matcher with DefaultPolicy unless overridden.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		policy:  DefaultPolicy(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "matcher")
	return m
}

// Policy returns the effective policy.
func (m *Matcher) Policy() Policy { return m.policy }

// Match classifies every scene against episodes. Results are returned in the
// order of scenes. The run stops at the first error, including context
// cancellation, and then returns no results so callers never see a partial
// batch.
func (m *Matcher) Match(ctx context.Context, scenes []SceneInput, episodes []Episode, progress ProgressFunc) ([]Result, error) {
	if len(scenes) == 0 {
		return nil, nil
	}
	if len(episodes) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "match", "library", "source library has no episodes", nil)
	}
	logger := logging.WithContext(ctx, m.logger)

	total := len(scenes)
	results := make([]Result, total)
	scores := make([][]episodeScore, total)
	remaining := make([]int32, total)
	resampled := newResampleCache(episodes)

	var (
		progressMu sync.Mutex
		done       int
	)
	finish := func(si int) error {
		in := scenes[si]
		results[si] = classify(in.Index, scores[si], m.policy)
		logger.Debug("scene classified", logging.Args(logging.MatchDecision(in.Index, string(results[si].State),
			fmt.Sprintf("best=%.4f candidates=%d", results[si].BestScore, len(results[si].Candidates)))...)...)
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		if progress == nil {
			return nil
		}
		return progress(done, total, results[si])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for si, in := range scenes {
		if !in.Fingerprint.Valid() {
			if err := finish(si); err != nil {
				return nil, err
			}
			continue
		}
		prepared := resampled.at(in.Fingerprint.Interval)
		probe := probeIndices(in.Fingerprint.Len(), m.policy.MaxFramesPerWindow)
		scores[si] = make([]episodeScore, len(prepared))
		remaining[si] = int32(len(prepared))
		for ei := range prepared {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				scored, err := scoreEpisode(gctx, in.Fingerprint.Frames, probe, prepared[ei], m.policy)
				if err != nil {
					return err
				}
				scores[si][ei] = scored
				if atomic.AddInt32(&remaining[si], -1) == 0 {
					return finish(si)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// resampleCache converts library fingerprints to a scene interval once per run.
type resampleCache struct {
	mu       sync.Mutex
	episodes []Episode
	byRate   map[float64][]Episode
}

func newResampleCache(episodes []Episode) *resampleCache {
	return &resampleCache{episodes: episodes, byRate: make(map[float64][]Episode)}
}

func (c *resampleCache) at(interval float64) []Episode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eps, ok := c.byRate[interval]; ok {
		return eps
	}
	out := make([]Episode, len(c.episodes))
	for i, ep := range c.episodes {
		out[i] = ep
		out[i].Fingerprint = ep.Fingerprint.Resample(interval)
	}
	c.byRate[interval] = out
	return out
}
