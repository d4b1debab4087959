package project

import (
	"fmt"
	"strings"

	"recut/internal/matching"
	"recut/internal/reconcile"
	"recut/internal/services"
	"recut/internal/timeline"
)

// EditKind names a timeline edit operation.
type EditKind string

const (
	EditSetStart EditKind = "set_start"
	EditSetEnd   EditKind = "set_end"
	EditResize   EditKind = "resize"
	EditSplit    EditKind = "split"
	EditMerge    EditKind = "merge"
)

// Edit is one requested timeline operation. Fields not used by Kind are
// ignored.
type Edit struct {
	Kind      EditKind           `json:"op"`
	Index     int                `json:"index"`
	At        float64            `json:"at"`
	Start     float64            `json:"start"`
	End       float64            `json:"end"`
	Direction timeline.Direction `json:"direction"`
}

// ParseEditKind accepts op names with dashes or underscores.
func ParseEditKind(value string) (EditKind, error) {
	kind := EditKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	switch kind {
	case EditSetStart, EditSetEnd, EditResize, EditSplit, EditMerge:
		return kind, nil
	}
	return "", services.Wrap(services.ErrValidation, "timeline", "parse", fmt.Sprintf("unknown edit %q", value), nil)
}

// editable rejects mutation once the project has been rendered.
func (p *Project) editable(op string) error {
	switch p.Effective() {
	case StageProcessing, StageCompleted:
		return services.Wrap(services.ErrConflict, "edit", op, "project has already been rendered", nil)
	}
	return nil
}

// ApplyEdit performs a validated timeline edit and remaps per-scene data.
// Splitting demotes both halves to Unmatched and drops their script and
// transcript. Merging keeps the surviving scene's data and discards the
// absorbed scene's. Bound moves leave data in place. The stage never
// regresses, but Matched and GapsPending follow the gap set.
func (p *Project) ApplyEdit(edit Edit) (timeline.Change, error) {
	op := string(edit.Kind)
	if err := p.editable(op); err != nil {
		return timeline.Change{}, err
	}
	if p.Timeline == nil {
		return timeline.Change{}, services.Wrap(services.ErrValidation, "edit", op, "project has no timeline yet", nil)
	}
	p.align()

	var (
		change timeline.Change
		err    error
	)
	switch edit.Kind {
	case EditSetStart:
		change, err = p.Timeline.SetStart(edit.Index, edit.At)
	case EditSetEnd:
		change, err = p.Timeline.SetEnd(edit.Index, edit.At)
	case EditResize:
		change, err = p.Timeline.Resize(edit.Index, edit.Start, edit.End)
	case EditSplit:
		change, err = p.Timeline.Split(edit.Index, edit.At)
	case EditMerge:
		change, err = p.Timeline.Merge(edit.Index, edit.Direction)
	default:
		return timeline.Change{}, services.Wrap(services.ErrValidation, "edit", op, fmt.Sprintf("unknown edit %q", edit.Kind), nil)
	}
	if err != nil {
		return timeline.Change{}, err
	}

	switch change.Kind {
	case timeline.ChangeSplit:
		p.remapSplit(change)
	case timeline.ChangeMerge:
		p.remapMerge(change)
	}
	p.renumber()
	p.refreshGaps()
	return change, nil
}

func (p *Project) remapSplit(change timeline.Change) {
	i := change.Index
	matched := p.match(i) != nil
	demoted := func() *matching.Result {
		if !matched {
			return nil
		}
		return &matching.Result{State: matching.Unmatched}
	}
	p.Matches = splice(p.Matches, i, 1, demoted(), demoted())
	p.Transcript = splice(p.Transcript, i, 1, nil, nil)
	p.Script = splice(p.Script, i, 1, nil, nil)
}

func (p *Project) remapMerge(change timeline.Change) {
	first := change.Result
	survivorMatch := p.match(change.Index)
	survivorTranscript := p.transcript(change.Index)
	survivorScript := p.script(change.Index)
	p.Matches = splice(p.Matches, first, 2, survivorMatch)
	p.Transcript = splice(p.Transcript, first, 2, survivorTranscript)
	p.Script = splice(p.Script, first, 2, survivorScript)
}

// splice replaces count elements at i with items.
func splice[T any](in []*T, i, count int, items ...*T) []*T {
	out := make([]*T, 0, len(in)-count+len(items))
	out = append(out, in[:i]...)
	out = append(out, items...)
	out = append(out, in[i+count:]...)
	return out
}

// ResolveGap records an operator-chosen source window for an Unmatched or
// Ambiguous scene. The result must come from matching.ValidateOverride.
func (p *Project) ResolveGap(result matching.Result) error {
	const op = "resolve_gap"
	if err := p.editable(op); err != nil {
		return err
	}
	if !p.Effective().Reached(StageMatched) {
		return services.Wrap(services.ErrConflict, "match", op, "matching has not run yet", nil)
	}
	if _, err := p.Timeline.Scene(result.SceneIndex); err != nil {
		return services.Wrap(services.ErrNotFound, "match", op, fmt.Sprintf("scene %d", result.SceneIndex), nil)
	}
	if result.State != matching.ManuallyOverridden || len(result.Candidates) != 1 {
		return services.Wrap(services.ErrValidation, "match", op, "override must carry exactly one manual candidate", nil)
	}
	if existing := p.match(result.SceneIndex); existing != nil && !existing.State.NeedsOperator() {
		return services.Wrap(services.ErrConflict, "match", op,
			fmt.Sprintf("scene %d is %s, not a gap", result.SceneIndex, existing.State), nil)
	}
	p.align()
	r := result
	r.Candidates = append([]matching.Candidate(nil), result.Candidates...)
	p.Matches[result.SceneIndex] = &r
	p.refreshGaps()
	return nil
}

// SetScript replaces the narration of one scene and reassesses it. An entry
// invalidated by a split is recreated with the scene's own span as its
// original duration.
func (p *Project) SetScript(index int, text, lang string, estimator *reconcile.Estimator) (ScriptEntry, error) {
	const op = "set_script"
	if err := p.editable(op); err != nil {
		return ScriptEntry{}, err
	}
	if !p.Effective().Reached(StageScriptRestructured) {
		return ScriptEntry{}, services.Wrap(services.ErrConflict, "script", op, "script has not been restructured yet", nil)
	}
	if _, err := p.Timeline.Scene(index); err != nil {
		return ScriptEntry{}, services.Wrap(services.ErrNotFound, "script", op, fmt.Sprintf("scene %d", index), nil)
	}
	if estimator == nil {
		return ScriptEntry{}, services.Wrap(services.ErrConfiguration, "script", op, "no estimator", nil)
	}
	p.align()
	original := p.originalDuration(index)
	if existing := p.script(index); existing != nil {
		original = existing.OriginalDuration
		if strings.TrimSpace(lang) == "" {
			lang = existing.Language
		}
	}
	if strings.TrimSpace(lang) == "" {
		lang = p.TargetLanguage
	}
	entry := newScriptEntry(index, text, strings.TrimSpace(lang), original, estimator)
	p.Script[index] = &entry
	return entry, nil
}

// RestructureInput pairs each scene's transcript with its span for the
// restructurer. Scenes without a transcript carry empty text.
func (p *Project) RestructureInput() []TranscriptSegment {
	n := p.SceneCount()
	out := make([]TranscriptSegment, n)
	for i := 0; i < n; i++ {
		if s := p.transcript(i); s != nil {
			out[i] = *s
			continue
		}
		out[i] = TranscriptSegment{SceneIndex: i, Language: p.TargetLanguage, OriginalDuration: p.originalDuration(i)}
	}
	return out
}

// MatchInputs returns the scenes an automated run should score: every scene
// except manual overrides.
func (p *Project) MatchInputs() []timeline.Scene {
	var out []timeline.Scene
	for _, scene := range p.Timeline.Scenes() {
		if m := p.match(scene.Index); m != nil && m.State.Sticky() {
			continue
		}
		out = append(out, scene)
	}
	return out
}
