package project

import (
	"fmt"
	"strings"

	"recut/internal/services"
)

// Stage is the project's position in the pipeline. Each forward stage names
// the state reached when the step that produces it has completed.
type Stage string

const (
	StageCreated            Stage = "created"
	StageDownloading        Stage = "downloading"
	StageScenesDetected     Stage = "scenes_detected"
	StageScenesValidated    Stage = "scenes_validated"
	StageTranscribed        Stage = "transcribed"
	StageScriptRestructured Stage = "script_restructured"
	StageMatched            Stage = "matched"
	// StageGapsPending is the Matched sub-state held while any scene is
	// unmatched or ambiguous.
	StageGapsPending    Stage = "gaps_pending"
	StageMatchValidated Stage = "match_validated"
	StageProcessing     Stage = "processing"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

var allStages = []Stage{
	StageCreated,
	StageDownloading,
	StageScenesDetected,
	StageScenesValidated,
	StageTranscribed,
	StageScriptRestructured,
	StageMatched,
	StageGapsPending,
	StageMatchValidated,
	StageProcessing,
	StageCompleted,
	StageFailed,
}

var stageOrder = map[Stage]int{
	StageCreated:            0,
	StageDownloading:        1,
	StageScenesDetected:     2,
	StageScenesValidated:    3,
	StageTranscribed:        4,
	StageScriptRestructured: 5,
	StageMatched:            6,
	StageGapsPending:        6,
	StageMatchValidated:     7,
	StageProcessing:         8,
	StageCompleted:          9,
}

// AllStages returns every stage in pipeline order.
func AllStages() []Stage {
	return append([]Stage(nil), allStages...)
}

// ParseStage converts a persisted value into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStages {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// Reached reports whether s is at or beyond other in pipeline order. Failed
// reaches nothing.
func (s Stage) Reached(other Stage) bool {
	a, ok := stageOrder[s]
	if !ok {
		return false
	}
	b, ok := stageOrder[other]
	return ok && a >= b
}

// Terminal reports whether no step can run from s.
func (s Stage) Terminal() bool { return s == StageCompleted }

// Step is a unit of pipeline work whose success advances the stage.
type Step string

const (
	StepDownload        Step = "download"
	StepDetect          Step = "detect"
	StepValidateScenes  Step = "validate-scenes"
	StepTranscribe      Step = "transcribe"
	StepRestructure     Step = "restructure"
	StepMatch           Step = "match"
	StepValidateMatches Step = "validate-matches"
	StepRender          Step = "render"
	StepPublish         Step = "publish"
)

type stepSpec struct {
	from []Stage
	to   Stage
	// external steps call collaborators and can fail the project.
	external bool
}

var steps = []Step{
	StepDownload,
	StepDetect,
	StepValidateScenes,
	StepTranscribe,
	StepRestructure,
	StepMatch,
	StepValidateMatches,
	StepRender,
	StepPublish,
}

var stepSpecs = map[Step]stepSpec{
	StepDownload:        {from: []Stage{StageCreated}, to: StageDownloading, external: true},
	StepDetect:          {from: []Stage{StageDownloading}, to: StageScenesDetected, external: true},
	StepValidateScenes:  {from: []Stage{StageScenesDetected}, to: StageScenesValidated},
	StepTranscribe:      {from: []Stage{StageScenesValidated}, to: StageTranscribed, external: true},
	StepRestructure:     {from: []Stage{StageTranscribed}, to: StageScriptRestructured, external: true},
	StepMatch:           {from: []Stage{StageScriptRestructured, StageMatched, StageGapsPending}, to: StageMatched, external: true},
	StepValidateMatches: {from: []Stage{StageMatched}, to: StageMatchValidated},
	StepRender:          {from: []Stage{StageMatchValidated}, to: StageProcessing, external: true},
	StepPublish:         {from: []Stage{StageProcessing}, to: StageCompleted, external: true},
}

// AllSteps returns every step in pipeline order.
func AllSteps() []Step {
	return append([]Step(nil), steps...)
}

// ParseStep converts user input into a known Step.
func ParseStep(value string) (Step, error) {
	normalized := Step(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", "-"))
	if _, ok := stepSpecs[normalized]; ok {
		return normalized, nil
	}
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = string(s)
	}
	return "", services.Wrap(services.ErrValidation, "pipeline", "parse step",
		fmt.Sprintf("unknown step %q (expected one of %s)", value, strings.Join(names, ", ")), nil)
}

// Target returns the stage a successful run of s reaches. Matching may land
// on GapsPending instead.
func (s Step) Target() Stage { return stepSpecs[s].to }

// External reports whether the step depends on an outside collaborator.
func (s Step) External() bool { return stepSpecs[s].external }

// Accepts reports whether the step may start from stage.
func (s Step) Accepts(stage Stage) bool {
	for _, from := range stepSpecs[s].from {
		if from == stage {
			return true
		}
	}
	return false
}

// NextStep returns the step that advances a project out of stage.
func NextStep(stage Stage) (Step, bool) {
	for _, s := range steps {
		if s == StepMatch && stage != StageScriptRestructured {
			continue
		}
		if s.Accepts(stage) {
			return s, true
		}
	}
	return "", false
}
