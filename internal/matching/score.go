package matching

import (
	"context"
	"math"
	"sort"
)

const cancelCheckEvery = 256

type window struct {
	offset int
	score  float64
}

type episodeScore struct {
	candidates []Candidate
	best       float64
}

// scoreEpisode slides the scene across one episode and returns the
// non-overlapping windows that clear the low threshold, best first.
func scoreEpisode(ctx context.Context, scene []uint64, probe []int, ep Episode, policy Policy) (episodeScore, error) {
	frames := ep.Fingerprint.Frames
	n, m := len(scene), len(frames)
	if n == 0 || m < n {
		return episodeScore{}, ctx.Err()
	}
	positions := m - n + 1
	stride := policy.WindowStride
	if minStride := (positions + policy.MaxWindowsPerEpisode - 1) / policy.MaxWindowsPerEpisode; minStride > stride {
		stride = minStride
	}

	var (
		windows []window
		best    float64
		scanned int
	)
	for offset := 0; offset < positions; offset += stride {
		if scanned%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return episodeScore{}, err
			}
		}
		scanned++
		score := windowSimilarity(scene, frames, offset, probe)
		if score > best {
			best = score
		}
		if score >= policy.LowThreshold {
			windows = append(windows, window{offset: offset, score: score})
		}
	}
	if stride > 1 && len(windows) > 0 {
		windows = refine(scene, frames, probe, windows, stride, positions, policy)
		for _, w := range windows {
			if w.score > best {
				best = w.score
			}
		}
	}

	accepted := suppress(windows, n, policy.MaxCandidates)
	candidates := make([]Candidate, 0, len(accepted))
	for _, w := range accepted {
		start := float64(w.offset) * ep.Fingerprint.Interval
		end := start + float64(n)*ep.Fingerprint.Interval
		if ep.Duration > 0 && end > ep.Duration {
			end = ep.Duration
		}
		candidates = append(candidates, Candidate{
			EpisodeID:   ep.ID,
			SourceStart: roundTime(start),
			SourceEnd:   roundTime(end),
			Confidence:  w.score,
		})
	}
	return episodeScore{candidates: candidates, best: best}, nil
}

// refine searches the offsets skipped by a coarse stride around each hit.
// The extra work is bounded by 2*stride per retained window.
func refine(scene, frames []uint64, probe []int, windows []window, stride, positions int, policy Policy) []window {
	ordered := append([]window(nil), windows...)
	sortWindows(ordered)
	if len(ordered) > policy.MaxCandidates*2 {
		ordered = ordered[:policy.MaxCandidates*2]
	}
	out := make([]window, 0, len(ordered))
	for _, w := range ordered {
		bestWin := w
		lo, hi := w.offset-stride+1, w.offset+stride-1
		if lo < 0 {
			lo = 0
		}
		if hi > positions-1 {
			hi = positions - 1
		}
		for offset := lo; offset <= hi; offset++ {
			if offset == w.offset {
				continue
			}
			if score := windowSimilarity(scene, frames, offset, probe); score > bestWin.score {
				bestWin = window{offset: offset, score: score}
			}
		}
		out = append(out, bestWin)
	}
	return out
}

// suppress keeps the best window of every overlapping cluster.
func suppress(windows []window, length, limit int) []window {
	ordered := append([]window(nil), windows...)
	sortWindows(ordered)
	accepted := make([]window, 0, limit)
	for _, w := range ordered {
		overlaps := false
		for _, a := range accepted {
			if absInt(w.offset-a.offset) < length {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		accepted = append(accepted, w)
		if len(accepted) == limit {
			break
		}
	}
	return accepted
}

func sortWindows(ws []window) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].score != ws[j].score {
			return ws[i].score > ws[j].score
		}
		return ws[i].offset < ws[j].offset
	})
}

// classify turns the pooled candidates of one scene into a Result.
func classify(sceneIndex int, scores []episodeScore, policy Policy) Result {
	var (
		pooled []Candidate
		best   float64
	)
	for _, s := range scores {
		pooled = append(pooled, s.candidates...)
		if s.best > best {
			best = s.best
		}
	}
	result := Result{SceneIndex: sceneIndex, State: Unmatched, BestScore: best}
	if len(pooled) == 0 {
		return result
	}
	sortCandidates(pooled)
	top := pooled[0]

	near := make([]Candidate, 0, len(pooled))
	for _, c := range pooled {
		if c.Confidence >= policy.LowThreshold && top.Confidence-c.Confidence <= policy.AmbiguityMargin+1e-12 {
			near = append(near, c)
		}
	}
	if len(near) > policy.MaxCandidates {
		near = near[:policy.MaxCandidates]
	}
	for i := range near {
		near[i].Rank = i + 1
	}
	result.Candidates = near
	if top.Confidence >= policy.HighThreshold && len(near) == 1 {
		result.State = Resolved
	} else {
		result.State = Ambiguous
	}
	return result
}

// sortCandidates orders by confidence descending, then earliest source start,
// then episode id so equal inputs always rank identically.
func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.SourceStart != b.SourceStart {
			return a.SourceStart < b.SourceStart
		}
		return a.EpisodeID < b.EpisodeID
	})
}

func roundTime(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
