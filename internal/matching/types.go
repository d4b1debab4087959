package matching

import (
	"context"
	"fmt"
	"strings"

	"recut/internal/services"
)

// State is the per-scene match outcome.
type State string

const (
	Unmatched          State = "unmatched"
	Ambiguous          State = "ambiguous"
	Resolved           State = "resolved"
	ManuallyOverridden State = "manually_overridden"
)

var allStates = []State{Unmatched, Ambiguous, Resolved, ManuallyOverridden}

// AllStates returns every match state in display order.
func AllStates() []State {
	return append([]State(nil), allStates...)
}

// ParseState converts a persisted value back to a State.
func ParseState(value string) (State, error) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown match state %q", value)
}

// NeedsOperator reports whether the scene is a gap an operator must resolve.
func (s State) NeedsOperator() bool {
	return s == Unmatched || s == Ambiguous
}

// Sticky reports whether automated matching must leave the scene alone.
func (s State) Sticky() bool {
	return s == ManuallyOverridden
}

// Candidate is one source window a scene may have been cut from.
type Candidate struct {
	EpisodeID   string  `json:"source_episode_id"`
	SourceStart float64 `json:"source_start"`
	SourceEnd   float64 `json:"source_end"`
	Confidence  float64 `json:"confidence"`
	Rank        int     `json:"rank"`
}

// Result is the outcome of matching one scene.
type Result struct {
	SceneIndex int         `json:"scene_index"`
	State      State       `json:"state"`
	Candidates []Candidate `json:"candidates,omitempty"`
	// BestScore is the top window score even when it fell below the low
	// threshold; useful when tuning.
	BestScore float64 `json:"best_score"`
}

// Top returns the first-ranked candidate.
func (r Result) Top() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Episode is one entry of the source library.
type Episode struct {
	ID          string
	Title       string
	Duration    float64
	Fingerprint Fingerprint
}

// Library exposes the read-only source episode set.
type Library interface {
	Episodes(ctx context.Context) ([]Episode, error)
	Episode(ctx context.Context, id string) (Episode, error)
}

// ValidateOverride validates an operator-chosen window and returns it as the single
// candidate of a ManuallyOverridden result.
func ValidateOverride(sceneIndex int, episode Episode, start, end float64) (Result, error) {
	if end <= start {
		return Result{}, services.Wrap(services.ErrValidation, "matching", "override",
			fmt.Sprintf("source_end %.3f must be after source_start %.3f", end, start), nil)
	}
	if start < 0 {
		return Result{}, services.Wrap(services.ErrValidation, "matching", "override",
			fmt.Sprintf("source_start %.3f is negative", start), nil)
	}
	extent := episode.Duration
	if extent <= 0 {
		extent = episode.Fingerprint.Duration()
	}
	if end > extent+1e-6 {
		return Result{}, services.Wrap(services.ErrValidation, "matching", "override",
			fmt.Sprintf("window [%.3f, %.3f) exceeds episode %s extent %.3f", start, end, episode.ID, extent), nil)
	}
	return Result{
		SceneIndex: sceneIndex,
		State:      ManuallyOverridden,
		Candidates: []Candidate{{
			EpisodeID:   episode.ID,
			SourceStart: start,
			SourceEnd:   end,
			Confidence:  1,
			Rank:        1,
		}},
		BestScore: 1,
	}, nil
}
