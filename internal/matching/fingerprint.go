package matching

import (
	"math"
	"math/bits"
)

// Fingerprint is a sequence of perceptual frame hashes sampled every Interval
// seconds starting at t=0.
type Fingerprint struct {
	Interval float64  `json:"interval"`
	Frames   []uint64 `json:"frames"`
}

// Len returns the number of sampled frames.
func (f Fingerprint) Len() int { return len(f.Frames) }

// Duration returns the time covered by the frames.
func (f Fingerprint) Duration() float64 { return float64(len(f.Frames)) * f.Interval }

// Valid reports whether the fingerprint can be compared.
func (f Fingerprint) Valid() bool {
	return f.Interval > 0 && !math.IsInf(f.Interval, 0) && len(f.Frames) > 0
}

// Slice returns the frames covering [start, end). The returned fingerprint
// shares no memory with f.
func (f Fingerprint) Slice(start, end float64) Fingerprint {
	if f.Interval <= 0 || end <= start {
		return Fingerprint{Interval: f.Interval}
	}
	from := int(math.Floor(start/f.Interval + 1e-9))
	to := int(math.Ceil(end/f.Interval - 1e-9))
	if from < 0 {
		from = 0
	}
	if to > len(f.Frames) {
		to = len(f.Frames)
	}
	if from >= to {
		return Fingerprint{Interval: f.Interval}
	}
	return Fingerprint{Interval: f.Interval, Frames: append([]uint64(nil), f.Frames[from:to]...)}
}

// Resample returns f re-expressed at the target interval by nearest-frame
// selection. It is a no-op when the intervals already agree.
func (f Fingerprint) Resample(interval float64) Fingerprint {
	if interval <= 0 || f.Interval <= 0 || math.Abs(interval-f.Interval) < 1e-9 {
		return f
	}
	count := int(math.Floor(f.Duration() / interval))
	out := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		src := int(math.Round(float64(i) * interval / f.Interval))
		if src >= len(f.Frames) {
			break
		}
		out = append(out, f.Frames[src])
	}
	return Fingerprint{Interval: interval, Frames: out}
}

// FrameSimilarity is 1 minus the normalized Hamming distance of two hashes.
func FrameSimilarity(a, b uint64) float64 {
	return 1 - float64(bits.OnesCount64(a^b))/64
}

// windowSimilarity scores the sampled scene frames against the episode frames
// starting at offset. probe lists the scene frame indices to compare.
func windowSimilarity(scene, episode []uint64, offset int, probe []int) float64 {
	if len(probe) == 0 {
		return 0
	}
	var sum float64
	for _, idx := range probe {
		sum += FrameSimilarity(scene[idx], episode[offset+idx])
	}
	return sum / float64(len(probe))
}

// probeIndices spreads at most limit indices evenly over [0, n).
func probeIndices(n, limit int) []int {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || n <= limit {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if limit == 1 {
		return []int{0}
	}
	out := make([]int, limit)
	step := float64(n-1) / float64(limit-1)
	for i := range out {
		out[i] = int(math.Round(float64(i) * step))
	}
	return out
}
