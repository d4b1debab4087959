package pipeline

import (
	"context"

	"recut/internal/matching"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/timeline"
)

// Downloader acquires the source video.
type Downloader interface {
	Download(ctx context.Context, projectID, sourceReference, workDir string, report progress.ReportFunc) (string, error)
}

// Detector cuts a video into scenes.
type Detector interface {
	Detect(ctx context.Context, videoPath string, report progress.ReportFunc) ([]timeline.Scene, float64, error)
}

// Transcriber produces per-scene speech text.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string, scenes []timeline.Scene, report progress.ReportFunc) ([]project.TranscriptSegment, error)
}

// Restructurer rewrites the transcript for the target language.
type Restructurer interface {
	Restructure(ctx context.Context, segments []project.TranscriptSegment, targetLanguage string, report progress.ReportFunc) ([]project.RestructuredText, error)
}

// Renderer produces the final video from a match-validated project.
type Renderer interface {
	Render(ctx context.Context, p *project.Project, workDir string, report progress.ReportFunc) (string, error)
}

// Publisher hands one target to the publish dispatcher.
type Publisher interface {
	Dispatch(ctx context.Context, p *project.Project, target project.PublishTarget) (project.Dispatch, error)
}

// Fingerprinter samples the edited video for matching.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, videoPath string, interval float64) (matching.Fingerprint, error)
}

// Collaborators bundles everything the steps call out to. A nil member
// makes its step fail with a configuration error.
type Collaborators struct {
	Downloader    Downloader
	Detector      Detector
	Transcriber   Transcriber
	Restructurer  Restructurer
	Renderer      Renderer
	Publisher     Publisher
	Fingerprinter Fingerprinter
	Library       matching.Library
}

// Health summarizes whether a step can run.
type Health struct {
	Step   project.Step `json:"step"`
	Ready  bool         `json:"ready"`
	Detail string       `json:"detail,omitempty"`
}

func healthy(step project.Step) Health { return Health{Step: step, Ready: true} }

func unhealthy(step project.Step, detail string) Health {
	return Health{Step: step, Ready: false, Detail: detail}
}

// configured is implemented by collaborators that can be present but unset,
// such as commands with an empty command line.
type configured interface {
	Configured() bool
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if c, ok := v.(configured); ok {
		return c.Configured()
	}
	return true
}
