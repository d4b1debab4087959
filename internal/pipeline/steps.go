package pipeline

import (
	"context"
	"fmt"
	"strings"

	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
)

func (r *Runner) performers() map[project.Step]performFunc {
	return map[project.Step]performFunc{
		project.StepDownload:        r.download,
		project.StepDetect:          r.detect,
		project.StepValidateScenes:  r.validateScenes,
		project.StepTranscribe:      r.transcribe,
		project.StepRestructure:     r.restructure,
		project.StepMatch:           r.match,
		project.StepValidateMatches: r.validateMatches,
		project.StepRender:          r.render,
		project.StepPublish:         r.publish,
	}
}

func (r *Runner) download(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	path, err := r.collab.Downloader.Download(ctx, snap.ID, snap.SourceReference, r.workDir(snap.ID), report)
	if err != nil {
		return outcome{}, err
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteDownload(path); err != nil {
			return "", err
		}
		return "downloaded " + path, nil
	}}, nil
}

func (r *Runner) detect(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	scenes, duration, err := r.collab.Detector.Detect(ctx, snap.VideoPath, report)
	if err != nil {
		return outcome{}, err
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteDetect(scenes, duration); err != nil {
			return "", err
		}
		return fmt.Sprintf("detected %d scenes over %.2fs", p.SceneCount(), duration), nil
	}}, nil
}

func (r *Runner) validateScenes(_ context.Context, _ *project.Project, _ progress.ReportFunc) (outcome, error) {
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteSceneValidation(); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d scenes accepted", p.SceneCount()), nil
	}}, nil
}

func (r *Runner) transcribe(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	segments, err := r.collab.Transcriber.Transcribe(ctx, snap.VideoPath, snap.Timeline.Scenes(), report)
	if err != nil {
		return outcome{}, err
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteTranscribe(segments); err != nil {
			return "", err
		}
		return fmt.Sprintf("transcribed %d scenes", len(segments)), nil
	}}, nil
}

func (r *Runner) restructure(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	texts, err := r.collab.Restructurer.Restructure(ctx, snap.RestructureInput(), snap.TargetLanguage, report)
	if err != nil {
		return outcome{}, err
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteRestructure(texts, r.estimator); err != nil {
			return "", err
		}
		summary := p.ScriptSummary()
		return fmt.Sprintf("script ready: %d scenes, %d outside tolerance", len(texts), len(summary.Flagged)), nil
	}}, nil
}

func (r *Runner) match(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	scenes := snap.MatchInputs()
	var results []matching.Result
	if len(scenes) > 0 {
		episodes, err := r.collab.Library.Episodes(ctx)
		if err != nil {
			return outcome{}, err
		}
		if err := report(0, fmt.Sprintf("fingerprinting %s", snap.VideoPath)); err != nil {
			return outcome{}, err
		}
		fp, err := r.collab.Fingerprinter.Fingerprint(ctx, snap.VideoPath, r.interval)
		if err != nil {
			return outcome{}, err
		}
		if !fp.Valid() {
			return outcome{}, services.Wrap(services.ErrExternalStep, string(project.StepMatch), "fingerprint",
				"fingerprinter returned no frames", nil)
		}
		inputs := make([]matching.SceneInput, len(scenes))
		for i, scene := range scenes {
			inputs[i] = matching.SceneInput{Index: scene.Index, Fingerprint: fp.Slice(scene.Start, scene.End)}
		}
		if err := report(10, fmt.Sprintf("scoring %d scenes against %d episodes", len(inputs), len(episodes))); err != nil {
			return outcome{}, err
		}
		results, err = r.matcher.Match(ctx, inputs, episodes, func(done, total int, res matching.Result) error {
			return report(10+90*float64(done)/float64(total), fmt.Sprintf("scene %d %s", res.SceneIndex, res.State))
		})
		if err != nil {
			return outcome{}, err
		}
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		out, err := p.CompleteMatch(results)
		if err != nil {
			return "", err
		}
		logging.WithContext(ctx, r.logger).Info("match results committed",
			logging.String(logging.FieldEventType, "match_committed"),
			logging.Int("applied", out.Applied),
			logging.Int("skipped", out.Skipped),
			logging.Int("gaps", len(out.Gaps)),
		)
		if len(out.Gaps) > 0 {
			return fmt.Sprintf("matched %d scenes; gaps at %s", out.Applied, joinIndices(out.Gaps)), nil
		}
		return fmt.Sprintf("matched %d scenes", out.Applied), nil
	}}, nil
}

func (r *Runner) validateMatches(_ context.Context, _ *project.Project, _ progress.ReportFunc) (outcome, error) {
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteMatchValidation(); err != nil {
			return "", err
		}
		return "matches accepted", nil
	}}, nil
}

func (r *Runner) render(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	path, err := r.collab.Renderer.Render(ctx, snap, r.workDir(snap.ID), report)
	if err != nil {
		return outcome{}, err
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.CompleteRender(path); err != nil {
			return "", err
		}
		return "rendered " + path, nil
	}}, nil
}

// publish dispatches every pending target. Dispatch failures are recorded
// with the rest and fail the project in the same commit. A cancelled run
// still records the targets already handed off, so a retry does not post
// them twice.
func (r *Runner) publish(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error) {
	pending := snap.PendingTargets()
	records := make([]project.Dispatch, 0, len(pending))
	for i, target := range pending {
		rec, err := r.collab.Publisher.Dispatch(ctx, snap, target)
		if err != nil {
			return dispatchedSoFar(records), err
		}
		records = append(records, rec)
		if err := report(100*float64(i+1)/float64(len(pending)), fmt.Sprintf("%s %s", target.Platform, rec.Status)); err != nil {
			return dispatchedSoFar(records), err
		}
	}
	return outcome{apply: func(p *project.Project) (string, error) {
		if err := p.RecordDispatches(records); err != nil {
			return "", err
		}
		var failed []string
		for _, rec := range records {
			if rec.Status == project.DispatchFailed {
				failed = append(failed, rec.Platform+": "+rec.Detail)
			}
		}
		if len(failed) > 0 {
			if err := p.Fail(project.StepPublish, "dispatch failed for "+strings.Join(failed, "; "), r.now()); err != nil {
				return "", err
			}
			return "", nil
		}
		if err := p.CompletePublish(); err != nil {
			return "", err
		}
		return fmt.Sprintf("dispatched %d targets", len(records)), nil
	}}, nil
}

func joinIndices(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

// dispatchedSoFar records a partial publish run without moving the stage.
func dispatchedSoFar(records []project.Dispatch) outcome {
	if len(records) == 0 {
		return outcome{}
	}
	return outcome{retain: true, apply: func(p *project.Project) (string, error) {
		if err := p.RecordDispatches(records); err != nil {
			return "", err
		}
		return fmt.Sprintf("recorded %d of the pending dispatches", len(records)), nil
	}}
}
