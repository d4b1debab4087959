package extcmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"recut/internal/config"
	"recut/internal/matching"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
	"recut/internal/timeline"
)

// Set bundles the collaborators built from the [commands] config section.
type Set struct {
	Downloader    *Downloader
	Detector      *Detector
	Transcriber   *Transcriber
	Restructurer  *Restructurer
	Renderer      *Renderer
	Fingerprinter *Fingerprinter
}

// FromConfig builds every collaborator. Unconfigured commands still produce
// a collaborator; running it reports a configuration error.
func FromConfig(cfg config.Commands, logger *slog.Logger) Set {
	return Set{
		Downloader:    &Downloader{cmd: New("download", cfg.Download, logger)},
		Detector:      &Detector{cmd: New("detect", cfg.Detect, logger)},
		Transcriber:   &Transcriber{cmd: New("transcribe", cfg.Transcribe, logger)},
		Restructurer:  &Restructurer{cmd: New("restructure", cfg.Restructure, logger)},
		Renderer:      &Renderer{cmd: New("render", cfg.Render, logger)},
		Fingerprinter: &Fingerprinter{cmd: New("fingerprint", cfg.Fingerprint, logger)},
	}
}

// Downloader fetches the source video into the project work directory.
type Downloader struct{ cmd *Command }

// NewDownloader wraps cmd.
func NewDownloader(cmd *Command) *Downloader { return &Downloader{cmd: cmd} }

// Configured reports whether a command line was provided.
func (d *Downloader) Configured() bool { return d != nil && d.cmd.Configured() }

// Download returns the local path of the fetched video.
func (d *Downloader) Download(ctx context.Context, projectID, sourceReference, workDir string, report progress.ReportFunc) (string, error) {
	var out struct {
		VideoPath string `json:"video_path"`
	}
	req := map[string]string{
		"project_id":       projectID,
		"source_reference": sourceReference,
		"work_dir":         workDir,
	}
	if err := d.cmd.Run(ctx, req, report, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.VideoPath) == "" {
		return "", services.Wrap(services.ErrExternalStep, "download", "decode result", "video_path is empty", nil)
	}
	return out.VideoPath, nil
}

// Detector runs the scene cut detector.
type Detector struct{ cmd *Command }

// NewDetector wraps cmd.
func NewDetector(cmd *Command) *Detector { return &Detector{cmd: cmd} }

// Configured reports whether a command line was provided.
func (d *Detector) Configured() bool { return d != nil && d.cmd.Configured() }

// Detect returns the detector's scene list and the video duration as
// reported; validation is left to the timeline.
func (d *Detector) Detect(ctx context.Context, videoPath string, report progress.ReportFunc) ([]timeline.Scene, float64, error) {
	var out struct {
		Duration float64          `json:"duration"`
		Scenes   []timeline.Scene `json:"scenes"`
	}
	if err := d.cmd.Run(ctx, map[string]string{"video_path": videoPath}, report, &out); err != nil {
		return nil, 0, err
	}
	return out.Scenes, out.Duration, nil
}

// Transcriber runs speech-to-text over the validated scenes.
type Transcriber struct{ cmd *Command }

// NewTranscriber wraps cmd.
func NewTranscriber(cmd *Command) *Transcriber { return &Transcriber{cmd: cmd} }

// Configured reports whether a command line was provided.
func (t *Transcriber) Configured() bool { return t != nil && t.cmd.Configured() }

// Transcribe returns one segment per scene the transcriber produced text for.
func (t *Transcriber) Transcribe(ctx context.Context, videoPath string, scenes []timeline.Scene, report progress.ReportFunc) ([]project.TranscriptSegment, error) {
	var out struct {
		Segments []project.TranscriptSegment `json:"segments"`
	}
	req := struct {
		VideoPath string           `json:"video_path"`
		Scenes    []timeline.Scene `json:"scenes"`
	}{videoPath, scenes}
	if err := t.cmd.Run(ctx, req, report, &out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// Restructurer rewrites or translates the transcript.
type Restructurer struct{ cmd *Command }

// NewRestructurer wraps cmd.
func NewRestructurer(cmd *Command) *Restructurer { return &Restructurer{cmd: cmd} }

// Configured reports whether a command line was provided.
func (r *Restructurer) Configured() bool { return r != nil && r.cmd.Configured() }

// Restructure returns the rewritten text per scene.
func (r *Restructurer) Restructure(ctx context.Context, segments []project.TranscriptSegment, targetLanguage string, report progress.ReportFunc) ([]project.RestructuredText, error) {
	var out struct {
		Scenes []project.RestructuredText `json:"scenes"`
	}
	req := struct {
		TargetLanguage string                      `json:"target_language"`
		Segments       []project.TranscriptSegment `json:"segments"`
	}{targetLanguage, segments}
	if err := r.cmd.Run(ctx, req, report, &out); err != nil {
		return nil, err
	}
	return out.Scenes, nil
}

// RenderScene is one scene of the render request.
type RenderScene struct {
	timeline.Scene
	Source     *matching.Candidate `json:"source,omitempty"`
	Narration  string              `json:"narration,omitempty"`
	Language   string              `json:"language,omitempty"`
	SpeedRatio float64             `json:"speed_ratio,omitempty"`
}

// Renderer produces the final video.
type Renderer struct{ cmd *Command }

// NewRenderer wraps cmd.
func NewRenderer(cmd *Command) *Renderer { return &Renderer{cmd: cmd} }

// Configured reports whether a command line was provided.
func (r *Renderer) Configured() bool { return r != nil && r.cmd.Configured() }

// RenderRequest builds the render input from p.
func RenderRequest(p *project.Project, workDir string) any {
	scenes := make([]RenderScene, 0, p.SceneCount())
	for _, scene := range p.Timeline.Scenes() {
		rs := RenderScene{Scene: scene}
		if m, ok := p.Match(scene.Index); ok {
			if top, ok := m.Top(); ok {
				rs.Source = &top
			}
		}
		if entry, ok := p.ScriptEntry(scene.Index); ok {
			rs.Narration = entry.Text
			rs.Language = entry.Language
			rs.SpeedRatio = entry.SpeedRatio
		}
		scenes = append(scenes, rs)
	}
	return struct {
		ProjectID string        `json:"project_id"`
		VideoPath string        `json:"video_path"`
		WorkDir   string        `json:"work_dir"`
		Scenes    []RenderScene `json:"scenes"`
	}{p.ID, p.VideoPath, workDir, scenes}
}

// Render returns the path of the rendered output.
func (r *Renderer) Render(ctx context.Context, p *project.Project, workDir string, report progress.ReportFunc) (string, error) {
	if !r.cmd.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "render", "run", "no command configured", nil)
	}
	var out struct {
		OutputPath string `json:"output_path"`
	}
	if err := r.cmd.Run(ctx, RenderRequest(p, workDir), report, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.OutputPath) == "" {
		return "", services.Wrap(services.ErrExternalStep, "render", "decode result", "output_path is empty", nil)
	}
	return out.OutputPath, nil
}

// Fingerprinter samples perceptual frame hashes from a video. It satisfies
// library.Fingerprinter.
type Fingerprinter struct{ cmd *Command }

// NewFingerprinter wraps cmd.
func NewFingerprinter(cmd *Command) *Fingerprinter { return &Fingerprinter{cmd: cmd} }

// Configured reports whether a command line was provided.
func (f *Fingerprinter) Configured() bool { return f != nil && f.cmd.Configured() }

// Fingerprint returns frames sampled every interval seconds. Frames travel as
// 16-digit hex strings so tools without 64-bit integers can produce them.
func (f *Fingerprinter) Fingerprint(ctx context.Context, videoPath string, interval float64) (matching.Fingerprint, error) {
	var out struct {
		Interval float64  `json:"interval"`
		Frames   []string `json:"frames"`
	}
	req := struct {
		VideoPath string  `json:"video_path"`
		Interval  float64 `json:"interval"`
	}{videoPath, interval}
	if err := f.cmd.Run(ctx, req, nil, &out); err != nil {
		return matching.Fingerprint{}, err
	}
	if out.Interval <= 0 {
		out.Interval = interval
	}
	frames, err := ParseFrames(out.Frames)
	if err != nil {
		return matching.Fingerprint{}, services.Wrap(services.ErrExternalStep, "fingerprint", "decode result", videoPath, err)
	}
	return matching.Fingerprint{Interval: out.Interval, Frames: frames}, nil
}

// ParseFrames decodes hex frame hashes.
func ParseFrames(values []string) ([]uint64, error) {
	frames := make([]uint64, len(values))
	for i, raw := range values {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames[i] = v
	}
	return frames, nil
}

// FormatFrames encodes frame hashes the way ParseFrames reads them.
func FormatFrames(frames []uint64) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = fmt.Sprintf("%016x", f)
	}
	return out
}
