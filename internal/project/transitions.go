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

// RestructuredText is the restructurer's output for one scene.
type RestructuredText struct {
	SceneIndex int    `json:"scene_index"`
	Text       string `json:"text"`
	Language   string `json:"language"`
}

// MatchOutcome summarizes one committed matching run.
type MatchOutcome struct {
	Applied int   `json:"applied"`
	Skipped int   `json:"skipped"`
	Gaps    []int `json:"gaps,omitempty"`
}

func rejected(step Step, format string, args ...any) error {
	return services.Wrap(services.ErrValidation, string(step), "precondition", fmt.Sprintf(format, args...), nil)
}

// CheckStep reports whether step may start now: the stage must accept it and
// the artifacts it consumes must be present and valid.
func (p *Project) CheckStep(step Step) error {
	if _, ok := stepSpecs[step]; !ok {
		return rejected(step, "unknown step")
	}
	if p.Stage == StageFailed {
		return services.Wrap(services.ErrConflict, string(step), "precondition",
			"project failed during "+string(p.failedStep())+"; retry it first", nil)
	}
	if p.Stage == StageGapsPending && (step == StepValidateMatches || step == StepRender || step == StepPublish) {
		return rejected(step, "scenes %s still need a match", joinInts(p.Gaps()))
	}
	if !step.Accepts(p.Stage) {
		return services.Wrap(services.ErrConflict, string(step), "precondition",
			fmt.Sprintf("cannot run from stage %s", p.Stage), nil)
	}
	switch step {
	case StepDetect:
		if strings.TrimSpace(p.VideoPath) == "" {
			return rejected(step, "no downloaded video")
		}
	case StepValidateScenes, StepTranscribe:
		if err := p.requireTimeline(step); err != nil {
			return err
		}
	case StepRestructure:
		if err := p.requireTimeline(step); err != nil {
			return err
		}
		if p.countPresent(p.Transcript) == 0 {
			return rejected(step, "no transcript")
		}
	case StepMatch:
		if err := p.requireTimeline(step); err != nil {
			return err
		}
	case StepValidateMatches:
		if err := p.requireNoGaps(step); err != nil {
			return err
		}
	case StepRender:
		if err := p.requireNoGaps(step); err != nil {
			return err
		}
		if missing := p.missingScript(); len(missing) > 0 {
			return rejected(step, "scenes %s have no script", joinInts(missing))
		}
	case StepPublish:
		if strings.TrimSpace(p.RenderPath) == "" {
			return rejected(step, "no rendered output")
		}
		if len(p.Targets) == 0 {
			return rejected(step, "no publish targets")
		}
	}
	return nil
}

func (p *Project) requireTimeline(step Step) error {
	if p.SceneCount() == 0 {
		return rejected(step, "timeline is empty")
	}
	if err := p.Timeline.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, string(step), "precondition", "timeline invalid", err)
	}
	return nil
}

func (p *Project) requireNoGaps(step Step) error {
	if err := p.requireTimeline(step); err != nil {
		return err
	}
	if gaps := p.Gaps(); len(gaps) > 0 {
		return rejected(step, "scenes %s still need a match", joinInts(gaps))
	}
	return nil
}

func (p *Project) missingScript() []int {
	var missing []int
	for i := 0; i < p.SceneCount(); i++ {
		if p.script(i) == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

func (p *Project) countPresent(items []*TranscriptSegment) int {
	n := 0
	for _, item := range items {
		if item != nil {
			n++
		}
	}
	return n
}

func (p *Project) advance(to Stage) {
	p.Stage = to
	p.Failure = nil
}

// CompleteDownload records the acquired video.
func (p *Project) CompleteDownload(videoPath string) error {
	if err := p.CheckStep(StepDownload); err != nil {
		return err
	}
	if strings.TrimSpace(videoPath) == "" {
		return rejected(StepDownload, "downloader returned no video path")
	}
	p.VideoPath = videoPath
	p.advance(StageDownloading)
	return nil
}

// CompleteDetect installs detector output as the timeline. Malformed output is
// rejected before it becomes the project's timeline.
func (p *Project) CompleteDetect(scenes []timeline.Scene, duration float64) error {
	if err := p.CheckStep(StepDetect); err != nil {
		return err
	}
	tl, err := timeline.FromDetector(scenes, duration)
	if err != nil {
		return err
	}
	p.Timeline = tl
	p.Matches, p.Transcript, p.Script = nil, nil, nil
	p.align()
	p.advance(StageScenesDetected)
	return nil
}

// CompleteSceneValidation confirms the operator accepted the timeline.
func (p *Project) CompleteSceneValidation() error {
	if err := p.CheckStep(StepValidateScenes); err != nil {
		return err
	}
	p.advance(StageScenesValidated)
	return nil
}

// CompleteTranscribe stores one transcript segment per scene.
func (p *Project) CompleteTranscribe(segments []TranscriptSegment) error {
	if err := p.CheckStep(StepTranscribe); err != nil {
		return err
	}
	n := p.SceneCount()
	next := make([]*TranscriptSegment, n)
	for _, seg := range segments {
		if seg.SceneIndex < 0 || seg.SceneIndex >= n {
			return rejected(StepTranscribe, "transcript references scene %d of %d", seg.SceneIndex, n)
		}
		if next[seg.SceneIndex] != nil {
			return rejected(StepTranscribe, "duplicate transcript for scene %d", seg.SceneIndex)
		}
		s := seg
		if s.OriginalDuration <= 0 {
			scene, _ := p.Timeline.Scene(s.SceneIndex)
			s.OriginalDuration = scene.Duration()
		}
		next[seg.SceneIndex] = &s
	}
	for i, seg := range next {
		if seg == nil {
			return rejected(StepTranscribe, "no transcript for scene %d", i)
		}
	}
	p.Transcript = next
	p.Script = make([]*ScriptEntry, n)
	p.advance(StageTranscribed)
	return nil
}

// CompleteRestructure creates script entries from rewritten text and assesses
// their timing. OriginalDuration is taken from the transcript.
func (p *Project) CompleteRestructure(texts []RestructuredText, estimator *reconcile.Estimator) error {
	if err := p.CheckStep(StepRestructure); err != nil {
		return err
	}
	if estimator == nil {
		return services.Wrap(services.ErrConfiguration, string(StepRestructure), "estimate", "no estimator", nil)
	}
	n := p.SceneCount()
	next := make([]*ScriptEntry, n)
	for _, text := range texts {
		if text.SceneIndex < 0 || text.SceneIndex >= n {
			return rejected(StepRestructure, "script references scene %d of %d", text.SceneIndex, n)
		}
		if next[text.SceneIndex] != nil {
			return rejected(StepRestructure, "duplicate script for scene %d", text.SceneIndex)
		}
		lang := strings.TrimSpace(text.Language)
		if lang == "" {
			lang = p.TargetLanguage
		}
		entry := newScriptEntry(text.SceneIndex, text.Text, lang, p.originalDuration(text.SceneIndex), estimator)
		next[text.SceneIndex] = &entry
	}
	for i, entry := range next {
		if entry == nil {
			return rejected(StepRestructure, "no script for scene %d", i)
		}
	}
	p.Script = next
	p.advance(StageScriptRestructured)
	return nil
}

// CompleteMatch commits a matching run as a single batch. Scenes that were
// manually overridden keep their result; every other scene needs one. The
// stage becomes GapsPending when any scene is unmatched or ambiguous.
func (p *Project) CompleteMatch(results []matching.Result) (MatchOutcome, error) {
	if err := p.CheckStep(StepMatch); err != nil {
		return MatchOutcome{}, err
	}
	n := p.SceneCount()
	incoming := make(map[int]matching.Result, len(results))
	for _, r := range results {
		if r.SceneIndex < 0 || r.SceneIndex >= n {
			return MatchOutcome{}, services.Wrap(services.ErrNotFound, string(StepMatch), "commit",
				fmt.Sprintf("result for scene %d of %d", r.SceneIndex, n), nil)
		}
		if _, dup := incoming[r.SceneIndex]; dup {
			return MatchOutcome{}, rejected(StepMatch, "duplicate result for scene %d", r.SceneIndex)
		}
		if r.State == matching.ManuallyOverridden {
			return MatchOutcome{}, rejected(StepMatch, "automated result for scene %d claims a manual override", r.SceneIndex)
		}
		incoming[r.SceneIndex] = r
	}

	next := cloneMatches(p.Matches)
	var outcome MatchOutcome
	for i := 0; i < n; i++ {
		if existing := p.match(i); existing != nil && existing.State.Sticky() {
			outcome.Skipped++
			continue
		}
		r, ok := incoming[i]
		if !ok {
			return MatchOutcome{}, rejected(StepMatch, "no result for scene %d", i)
		}
		r.Candidates = append([]matching.Candidate(nil), r.Candidates...)
		next[i] = &r
		outcome.Applied++
	}
	p.Matches = next
	p.advance(StageMatched)
	p.refreshGaps()
	outcome.Gaps = p.Gaps()
	return outcome, nil
}

// CompleteMatchValidation confirms every scene has an accepted match.
func (p *Project) CompleteMatchValidation() error {
	if err := p.CheckStep(StepValidateMatches); err != nil {
		return err
	}
	p.advance(StageMatchValidated)
	return nil
}

// CompleteRender records the rendered output.
func (p *Project) CompleteRender(outputPath string) error {
	if err := p.CheckStep(StepRender); err != nil {
		return err
	}
	if strings.TrimSpace(outputPath) == "" {
		return rejected(StepRender, "renderer returned no output path")
	}
	p.RenderPath = outputPath
	p.advance(StageProcessing)
	return nil
}

// RecordDispatches appends publish hand-off records. It does not move the
// stage.
func (p *Project) RecordDispatches(records []Dispatch) error {
	if err := p.CheckStep(StepPublish); err != nil {
		return err
	}
	p.Dispatches = append(p.Dispatches, records...)
	return nil
}

// CompletePublish finishes the project once every target was dispatched.
func (p *Project) CompletePublish() error {
	if err := p.CheckStep(StepPublish); err != nil {
		return err
	}
	if pending := p.PendingTargets(); len(pending) > 0 {
		names := make([]string, len(pending))
		for i, t := range pending {
			names[i] = t.Platform
		}
		return rejected(StepPublish, "targets %s not dispatched", strings.Join(names, ", "))
	}
	p.advance(StageCompleted)
	return nil
}

// Fail moves the project to StageFailed, remembering the last good stage so a
// retry resumes there.
func (p *Project) Fail(step Step, reason string, at time.Time) error {
	if p.Stage.Terminal() {
		return services.Wrap(services.ErrConflict, string(step), "fail", "project already completed", nil)
	}
	lastGood := p.Effective()
	p.Failure = &Failure{Step: step, LastGood: lastGood, Reason: strings.TrimSpace(reason), At: at.UTC()}
	p.Stage = StageFailed
	return nil
}

// Rewind clears a failure and restores the last good stage. It returns the
// step that failed so the caller can run it again.
func (p *Project) Rewind() (Step, error) {
	if p.Stage != StageFailed || p.Failure == nil {
		return "", services.Wrap(services.ErrConflict, "retry", "rewind", fmt.Sprintf("project is %s, not failed", p.Stage), nil)
	}
	step := p.Failure.Step
	p.Stage = p.Failure.LastGood
	p.Failure = nil
	p.refreshGaps()
	return step, nil
}

func (p *Project) failedStep() Step {
	if p.Failure == nil {
		return ""
	}
	return p.Failure.Step
}

// refreshGaps flips between Matched and GapsPending as gaps appear or clear.
// A validated match set that regains gaps drops back to GapsPending.
func (p *Project) refreshGaps() {
	switch p.Stage {
	case StageMatched, StageMatchValidated:
		if len(p.Gaps()) > 0 {
			p.Stage = StageGapsPending
		}
	case StageGapsPending:
		if len(p.Gaps()) == 0 {
			p.Stage = StageMatched
		}
	}
}

func newScriptEntry(index int, text, lang string, original float64, estimator *reconcile.Estimator) ScriptEntry {
	a := estimator.Assess(text, lang, original)
	return ScriptEntry{
		SceneIndex:        index,
		Text:              text,
		Language:          lang,
		EstimatedDuration: a.EstimatedDuration,
		OriginalDuration:  original,
		SpeedRatio:        a.SpeedRatio,
		Classification:    a.Classification,
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
