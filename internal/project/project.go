package project

import (
	"fmt"
	"strings"
	"time"

	"recut/internal/matching"
	"recut/internal/reconcile"
	"recut/internal/services"
	"recut/internal/timeline"
)

// TranscriptSegment is the transcriber's text for one scene.
type TranscriptSegment struct {
	SceneIndex       int     `json:"scene_index"`
	Text             string  `json:"text"`
	Language         string  `json:"language"`
	OriginalDuration float64 `json:"original_duration"`
}

// ScriptEntry is the rewritten narration for one scene with its timing
// assessment. OriginalDuration is fixed when the entry is created.
type ScriptEntry struct {
	SceneIndex        int                      `json:"scene_index"`
	Text              string                   `json:"text"`
	Language          string                   `json:"language"`
	EstimatedDuration float64                  `json:"estimated_duration"`
	OriginalDuration  float64                  `json:"original_duration"`
	SpeedRatio        float64                  `json:"speed_ratio"`
	Classification    reconcile.Classification `json:"classification"`
}

// PublishTarget is one platform the finished video goes to.
type PublishTarget struct {
	Platform    string    `json:"platform"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Caption     string    `json:"caption,omitempty"`
}

// DispatchStatus is the only publish outcome the core tracks.
type DispatchStatus string

const (
	DispatchDispatched DispatchStatus = "dispatched"
	DispatchFailed     DispatchStatus = "failed"
)

// Dispatch records one hand-off to the publish dispatcher.
type Dispatch struct {
	ID       string         `json:"id"`
	Platform string         `json:"platform"`
	Status   DispatchStatus `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}

// Failure captures why a project entered StageFailed.
type Failure struct {
	Step     Step      `json:"step"`
	LastGood Stage     `json:"last_good"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Project is the unit of persistence and concurrency.
type Project struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	SourceReference string          `json:"source_reference"`
	TargetLanguage  string          `json:"target_language"`
	VideoPath       string          `json:"video_path,omitempty"`
	RenderPath      string          `json:"render_path,omitempty"`
	Stage           Stage           `json:"stage"`
	Failure         *Failure        `json:"failure,omitempty"`
	Targets         []PublishTarget `json:"targets,omitempty"`

	Timeline *timeline.Timeline `json:"timeline,omitempty"`
	// Matches, Transcript and Script are aligned with Timeline scenes; a nil
	// element means the scene has no data of that kind.
	Matches    []*matching.Result   `json:"matches,omitempty"`
	Transcript []*TranscriptSegment `json:"transcript,omitempty"`
	Script     []*ScriptEntry       `json:"script,omitempty"`
	Dispatches []Dispatch           `json:"dispatches,omitempty"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a project in StageCreated.
func New(id, name, sourceReference, targetLanguage string, targets []PublishTarget) (*Project, error) {
	id = strings.TrimSpace(id)
	sourceReference = strings.TrimSpace(sourceReference)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "project", "create", "id is required", nil)
	}
	if sourceReference == "" {
		return nil, services.Wrap(services.ErrValidation, "project", "create", "source reference is required", nil)
	}
	for i, target := range targets {
		if strings.TrimSpace(target.Platform) == "" {
			return nil, services.Wrap(services.ErrValidation, "project", "create", fmt.Sprintf("target %d has no platform", i), nil)
		}
		if target.ScheduledAt.IsZero() {
			return nil, services.Wrap(services.ErrValidation, "project", "create", fmt.Sprintf("target %s has no schedule", target.Platform), nil)
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	return &Project{
		ID:              id,
		Name:            name,
		SourceReference: sourceReference,
		TargetLanguage:  strings.TrimSpace(targetLanguage),
		Stage:           StageCreated,
		Targets:         append([]PublishTarget(nil), targets...),
	}, nil
}

// Effective returns the stage the project's artifacts support: the current
// stage, or the last good stage while failed.
func (p *Project) Effective() Stage {
	if p.Stage == StageFailed && p.Failure != nil {
		return p.Failure.LastGood
	}
	return p.Stage
}

// SceneCount returns the number of scenes on the timeline.
func (p *Project) SceneCount() int { return p.Timeline.Len() }

// Gaps returns the scenes that still need an operator decision. It is only
// meaningful once matching has run.
func (p *Project) Gaps() []int {
	var gaps []int
	for i := 0; i < p.SceneCount(); i++ {
		if m := p.match(i); m == nil || m.State.NeedsOperator() {
			gaps = append(gaps, i)
		}
	}
	return gaps
}

// MatchCounts tallies scenes per match state.
func (p *Project) MatchCounts() map[matching.State]int {
	counts := make(map[matching.State]int, 4)
	for i := 0; i < p.SceneCount(); i++ {
		if m := p.match(i); m != nil {
			counts[m.State]++
		}
	}
	return counts
}

// ScriptSummary tallies drift classifications across script entries.
func (p *Project) ScriptSummary() reconcile.Summary {
	var (
		indices     []int
		assessments []reconcile.Assessment
	)
	for i := 0; i < p.SceneCount(); i++ {
		entry := p.script(i)
		if entry == nil {
			continue
		}
		indices = append(indices, i)
		assessments = append(assessments, reconcile.Assessment{
			EstimatedDuration: entry.EstimatedDuration,
			OriginalDuration:  entry.OriginalDuration,
			SpeedRatio:        entry.SpeedRatio,
			Classification:    entry.Classification,
		})
	}
	return reconcile.Summarize(indices, assessments)
}

// PendingTargets returns targets without a successful dispatch.
func (p *Project) PendingTargets() []PublishTarget {
	done := make(map[string]bool, len(p.Dispatches))
	for _, d := range p.Dispatches {
		if d.Status == DispatchDispatched {
			done[strings.ToLower(d.Platform)] = true
		}
	}
	var pending []PublishTarget
	for _, t := range p.Targets {
		if !done[strings.ToLower(t.Platform)] {
			pending = append(pending, t)
		}
	}
	return pending
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Failure != nil {
		f := *p.Failure
		cp.Failure = &f
	}
	cp.Targets = append([]PublishTarget(nil), p.Targets...)
	cp.Dispatches = append([]Dispatch(nil), p.Dispatches...)
	cp.Timeline = p.Timeline.Clone()
	cp.Matches = cloneMatches(p.Matches)
	cp.Transcript = clonePtrs(p.Transcript)
	cp.Script = clonePtrs(p.Script)
	return &cp
}

func cloneMatches(in []*matching.Result) []*matching.Result {
	if in == nil {
		return nil
	}
	out := make([]*matching.Result, len(in))
	for i, m := range in {
		if m == nil {
			continue
		}
		c := *m
		c.Candidates = append([]matching.Candidate(nil), m.Candidates...)
		out[i] = &c
	}
	return out
}

func clonePtrs[T any](in []*T) []*T {
	if in == nil {
		return nil
	}
	out := make([]*T, len(in))
	for i, v := range in {
		if v != nil {
			c := *v
			out[i] = &c
		}
	}
	return out
}

func (p *Project) match(i int) *matching.Result {
	if i < 0 || i >= len(p.Matches) {
		return nil
	}
	return p.Matches[i]
}

func (p *Project) script(i int) *ScriptEntry {
	if i < 0 || i >= len(p.Script) {
		return nil
	}
	return p.Script[i]
}

func (p *Project) transcript(i int) *TranscriptSegment {
	if i < 0 || i >= len(p.Transcript) {
		return nil
	}
	return p.Transcript[i]
}

// Match returns the match result of scene i.
func (p *Project) Match(i int) (matching.Result, bool) {
	if m := p.match(i); m != nil {
		return *m, true
	}
	return matching.Result{}, false
}

// ScriptEntry returns the script entry of scene i.
func (p *Project) ScriptEntry(i int) (ScriptEntry, bool) {
	if e := p.script(i); e != nil {
		return *e, true
	}
	return ScriptEntry{}, false
}

// TranscriptSegment returns the transcript of scene i.
func (p *Project) TranscriptSegment(i int) (TranscriptSegment, bool) {
	if s := p.transcript(i); s != nil {
		return *s, true
	}
	return TranscriptSegment{}, false
}

// originalDuration is the timing budget for scene i: the transcribed span
// when present, otherwise the scene's own span.
func (p *Project) originalDuration(i int) float64 {
	if s := p.transcript(i); s != nil && s.OriginalDuration > 0 {
		return s.OriginalDuration
	}
	scene, err := p.Timeline.Scene(i)
	if err != nil {
		return 0
	}
	return scene.Duration()
}

// align pads or trims the per-scene slices to the timeline length.
func (p *Project) align() {
	n := p.SceneCount()
	p.Matches = resize(p.Matches, n)
	p.Transcript = resize(p.Transcript, n)
	p.Script = resize(p.Script, n)
}

func resize[T any](in []*T, n int) []*T {
	if len(in) == n {
		return in
	}
	out := make([]*T, n)
	copy(out, in)
	return out
}

func (p *Project) renumber() {
	for i := range p.Matches {
		if p.Matches[i] != nil {
			p.Matches[i].SceneIndex = i
		}
	}
	for i := range p.Transcript {
		if p.Transcript[i] != nil {
			p.Transcript[i].SceneIndex = i
		}
	}
	for i := range p.Script {
		if p.Script[i] != nil {
			p.Script[i].SceneIndex = i
		}
	}
}
