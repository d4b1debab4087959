package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"recut/internal/matching"
	"recut/internal/pipeline"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
	"recut/internal/testsupport"
	"recut/internal/timeline"
)

const frameInterval = 0.5

type fakeDownloader struct{}

func (fakeDownloader) Download(_ context.Context, projectID, _, workDir string, report progress.ReportFunc) (string, error) {
	if err := report(50, "fetching"); err != nil {
		return "", err
	}
	return workDir + "/" + projectID + ".mp4", nil
}

// fakeDetector returns scenes, or blocks until released or cancelled when
// gate is set.
type fakeDetector struct {
	scenes   []timeline.Scene
	duration float64
	started  chan struct{}
	gate     chan struct{}
}

func (d *fakeDetector) Detect(ctx context.Context, _ string, report progress.ReportFunc) ([]timeline.Scene, float64, error) {
	if d.started != nil {
		close(d.started)
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, 0, services.Wrap(services.ErrStreamAborted, "detect", "run", "cancelled", ctx.Err())
		}
	}
	if err := report(100, "scenes cut"); err != nil {
		return nil, 0, err
	}
	return d.scenes, d.duration, nil
}

type fakeTranscriber struct {
	mu      sync.Mutex
	failN   int
	calls   int
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string, scenes []timeline.Scene, _ progress.ReportFunc) ([]project.TranscriptSegment, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failN
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, services.Wrap(services.ErrExternalStep, "transcribe", "run", "speech model crashed", nil)
	}
	out := make([]project.TranscriptSegment, len(scenes))
	for i, s := range scenes {
		out[i] = project.TranscriptSegment{SceneIndex: s.Index, Text: fmt.Sprintf("linea %d del guion", s.Index), Language: "es"}
	}
	return out, nil
}

type fakeRestructurer struct{}

func (fakeRestructurer) Restructure(_ context.Context, segments []project.TranscriptSegment, lang string, _ progress.ReportFunc) ([]project.RestructuredText, error) {
	out := make([]project.RestructuredText, len(segments))
	for i, s := range segments {
		out[i] = project.RestructuredText{SceneIndex: s.SceneIndex, Text: "this is scene line number " + fmt.Sprint(s.SceneIndex), Language: lang}
	}
	return out, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(_ context.Context, p *project.Project, workDir string, _ progress.ReportFunc) (string, error) {
	return workDir + "/" + p.ID + ".final.mp4", nil
}

// fakePublisher records calls. seq numbers dispatch ids across the whole
// test so retries never reuse one; after runs once a dispatch returns.
type fakePublisher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	seq   int
	after func(platform string)
}

func (f *fakePublisher) Dispatch(ctx context.Context, _ *project.Project, target project.PublishTarget) (project.Dispatch, error) {
	if err := ctx.Err(); err != nil {
		return project.Dispatch{}, services.Wrap(services.ErrStreamAborted, "publish", "dispatch", "cancelled", err)
	}
	f.mu.Lock()
	f.calls = append(f.calls, target.Platform)
	f.seq++
	rec := project.Dispatch{ID: fmt.Sprintf("d-%d", f.seq), Platform: target.Platform, Status: project.DispatchDispatched, At: time.Now().UTC()}
	if f.fail[target.Platform] {
		rec.Status = project.DispatchFailed
		rec.Detail = "webhook returned 503"
	}
	after := f.after
	f.mu.Unlock()
	if after != nil {
		after(target.Platform)
	}
	return rec, nil
}

type fakeFingerprinter struct {
	fp matching.Fingerprint
}

func (f fakeFingerprinter) Fingerprint(context.Context, string, float64) (matching.Fingerprint, error) {
	return f.fp, nil
}

type fakeLibrary struct {
	episodes []matching.Episode
}

func (l fakeLibrary) Episodes(context.Context) ([]matching.Episode, error) { return l.episodes, nil }

func (l fakeLibrary) Episode(_ context.Context, id string) (matching.Episode, error) {
	for _, ep := range l.episodes {
		if ep.ID == id {
			return ep, nil
		}
	}
	return matching.Episode{}, services.Wrap(services.ErrNotFound, "library", "episode", id, nil)
}

type fixture struct {
	runner      *pipeline.Runner
	detector    *fakeDetector
	transcriber *fakeTranscriber
	publisher   *fakePublisher
	collab      pipeline.Collaborators
}

func randomFrames(rng *rand.Rand, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = rng.Uint64()
	}
	return out
}

// newFixture builds a runner whose edited video is two 15s excerpts of one
// library episode, so every scene resolves.
func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 9))
	source := randomFrames(rng, 200)
	video := append(append([]uint64(nil), source[40:70]...), source[120:150]...)

	f := &fixture{
		detector: &fakeDetector{
			scenes:   []timeline.Scene{{Index: 0, Start: 0, End: 15}, {Index: 1, Start: 15, End: 30}},
			duration: 30,
		},
		transcriber: &fakeTranscriber{},
		publisher:   &fakePublisher{fail: map[string]bool{}},
	}
	f.collab = pipeline.Collaborators{
		Downloader:    fakeDownloader{},
		Detector:      f.detector,
		Transcriber:   f.transcriber,
		Restructurer:  fakeRestructurer{},
		Renderer:      fakeRenderer{},
		Publisher:     f.publisher,
		Fingerprinter: fakeFingerprinter{fp: matching.Fingerprint{Interval: frameInterval, Frames: video}},
		Library: fakeLibrary{episodes: []matching.Episode{{
			ID: "s01e01", Title: "Pilot", Duration: float64(len(source)) * frameInterval,
			Fingerprint: matching.Fingerprint{Interval: frameInterval, Frames: source},
		}}},
	}
	if mutate != nil {
		mutate(f)
	}

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	runner, err := pipeline.New(st, f.collab,
		pipeline.WithMatcher(matching.NewMatcher(matching.WithWorkers(2))),
		pipeline.WithWorkDir(cfg.ProjectWorkDir),
		pipeline.WithFrameInterval(frameInterval),
	)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	f.runner = runner
	return f
}

func (f *fixture) create(t *testing.T, id string, platforms ...string) {
	t.Helper()
	targets := make([]project.PublishTarget, len(platforms))
	for i, name := range platforms {
		targets[i] = project.PublishTarget{Platform: name, ScheduledAt: time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)}
	}
	p, err := project.New(id, "", "https://example.com/"+id, "en", targets)
	if err != nil {
		t.Fatalf("project.New: %v", err)
	}
	if err := f.runner.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func (f *fixture) run(t *testing.T, id string, steps ...project.Step) {
	t.Helper()
	for _, step := range steps {
		if err := f.runner.Run(context.Background(), id, step, nil); err != nil {
			t.Fatalf("run %s: %v", step, err)
		}
	}
}

func (f *fixture) stage(t *testing.T, id string) *project.Project {
	t.Helper()
	p, err := f.runner.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return p
}

func TestRunnerFullLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "p1", "youtube", "tiktok")

	var events []progress.Event
	if err := f.runner.Run(context.Background(), "p1", project.StepDownload, func(evt progress.Event) error {
		events = append(events, evt)
		return nil
	}); err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(events) != 2 || events[0].Status != progress.StatusProgress || events[1].Status != progress.StatusComplete {
		t.Fatalf("unexpected download events: %+v", events)
	}

	f.run(t, "p1",
		project.StepDetect,
		project.StepValidateScenes,
		project.StepTranscribe,
		project.StepRestructure,
		project.StepMatch,
	)
	p := f.stage(t, "p1")
	if p.Stage != project.StageMatched {
		t.Fatalf("expected matched, got %s (gaps %v)", p.Stage, p.Gaps())
	}
	for i := 0; i < p.SceneCount(); i++ {
		m, ok := p.Match(i)
		if !ok || m.State != matching.Resolved {
			t.Fatalf("scene %d: expected resolved, got %+v", i, m)
		}
	}

	f.run(t, "p1", project.StepValidateMatches, project.StepRender, project.StepPublish)
	p = f.stage(t, "p1")
	if p.Stage != project.StageCompleted {
		t.Fatalf("expected completed, got %s", p.Stage)
	}
	if len(p.Dispatches) != 2 || len(p.PendingTargets()) != 0 {
		t.Fatalf("unexpected dispatches: %+v", p.Dispatches)
	}
	if p.RenderPath == "" || p.VideoPath == "" {
		t.Fatalf("expected artifact paths, got video=%q render=%q", p.VideoPath, p.RenderPath)
	}
	if len(f.runner.Active()) != 0 {
		t.Fatalf("expected no active tasks, got %+v", f.runner.Active())
	}
}

func TestRunnerRejectsOutOfOrderStep(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "p1")

	_, err := f.runner.Start(context.Background(), "p1", project.StepTranscribe)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := f.stage(t, "p1").Stage; got != project.StageCreated {
		t.Fatalf("stage moved to %s", got)
	}
}

func TestCancelLeavesStageUnchanged(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.detector.started = make(chan struct{})
		f.detector.gate = make(chan struct{})
	})
	f.create(t, "p1")
	f.run(t, "p1", project.StepDownload)

	stream, err := f.runner.Start(context.Background(), "p1", project.StepDetect)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-f.detector.started
	if task, ok := f.runner.Running("p1"); !ok || task.Step != project.StepDetect {
		t.Fatalf("expected detect running, got %+v %v", task, ok)
	}
	if !f.runner.Cancel("p1") {
		t.Fatal("Cancel reported nothing running")
	}
	var terminal bool
	err = stream.Drain(func(evt progress.Event) error {
		if evt.Terminal() {
			terminal = true
		}
		return nil
	})
	if !errors.Is(err, services.ErrStreamAborted) {
		t.Fatalf("expected aborted, got %v", err)
	}
	if terminal {
		t.Fatal("cancelled stream must not carry a terminal event")
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageDownloading || p.SceneCount() != 0 {
		t.Fatalf("cancel changed the project: stage=%s scenes=%d", p.Stage, p.SceneCount())
	}
	if f.runner.Cancel("p1") {
		t.Fatal("expected nothing running after cancel")
	}
}

func TestConcurrentStartConflicts(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.detector.started = make(chan struct{})
		f.detector.gate = make(chan struct{})
	})
	f.create(t, "p1")
	f.run(t, "p1", project.StepDownload)

	stream, err := f.runner.Start(context.Background(), "p1", project.StepDetect)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-f.detector.started
	if _, err := f.runner.Start(context.Background(), "p1", project.StepDetect); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for second start, got %v", err)
	}
	if err := f.runner.Delete(context.Background(), "p1"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected delete conflict while running, got %v", err)
	}
	close(f.detector.gate)
	if err := stream.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := f.stage(t, "p1").Stage; got != project.StageScenesDetected {
		t.Fatalf("expected scenes_detected, got %s", got)
	}
}

func TestExternalFailureThenRetry(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.transcriber.failN = 1 })
	f.create(t, "p1")
	f.run(t, "p1", project.StepDownload, project.StepDetect, project.StepValidateScenes)

	err := f.runner.Run(context.Background(), "p1", project.StepTranscribe, nil)
	if !errors.Is(err, services.ErrExternalStep) {
		t.Fatalf("expected external step error, got %v", err)
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageFailed || p.Failure == nil {
		t.Fatalf("expected failed project, got %s %+v", p.Stage, p.Failure)
	}
	if p.Failure.Step != project.StepTranscribe || p.Failure.LastGood != project.StageScenesValidated {
		t.Fatalf("unexpected failure record %+v", p.Failure)
	}
	if _, err := f.runner.Start(context.Background(), "p1", project.StepRestructure); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("failed project must reject new steps, got %v", err)
	}

	stream, err := f.runner.Retry(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	p = f.stage(t, "p1")
	if p.Stage != project.StageTranscribed || p.Failure != nil {
		t.Fatalf("expected transcribed after retry, got %s %+v", p.Stage, p.Failure)
	}
}

func TestMalformedDetectorOutputFailsProject(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.detector.scenes = []timeline.Scene{{Index: 0, Start: 0, End: 20}, {Index: 1, Start: 15, End: 30}}
	})
	f.create(t, "p1")
	f.run(t, "p1", project.StepDownload)

	err := f.runner.Run(context.Background(), "p1", project.StepDetect, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageFailed || p.Failure.Step != project.StepDetect {
		t.Fatalf("expected detect failure, got %s %+v", p.Stage, p.Failure)
	}
	if p.SceneCount() != 0 {
		t.Fatalf("malformed scenes must not be stored, got %d", p.SceneCount())
	}
}

func TestEditDuringStepInvalidatesCommit(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.transcriber.started = make(chan struct{})
		f.transcriber.gate = make(chan struct{})
	})
	started := f.transcriber.started
	f.create(t, "p1")
	f.run(t, "p1", project.StepDownload, project.StepDetect, project.StepValidateScenes)

	stream, err := f.runner.Start(context.Background(), "p1", project.StepTranscribe)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	if _, err := f.runner.Mutate(context.Background(), "p1", func(p *project.Project) error {
		p.Name = "renamed"
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	close(f.transcriber.gate)
	if err := stream.Wait(); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageScenesValidated || p.Name != "renamed" {
		t.Fatalf("unexpected project after conflict: stage=%s name=%s", p.Stage, p.Name)
	}
}

func TestMatchLeavesGapsPending(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		rng := rand.New(rand.NewPCG(5, 5))
		fp := f.collab.Fingerprinter.(fakeFingerprinter).fp
		frames := append([]uint64(nil), fp.Frames...)
		copy(frames[30:], randomFrames(rng, 30))
		f.collab.Fingerprinter = fakeFingerprinter{fp: matching.Fingerprint{Interval: frameInterval, Frames: frames}}
	})
	f.create(t, "p1")
	f.run(t, "p1",
		project.StepDownload,
		project.StepDetect,
		project.StepValidateScenes,
		project.StepTranscribe,
		project.StepRestructure,
		project.StepMatch,
	)
	p := f.stage(t, "p1")
	if p.Stage != project.StageGapsPending {
		t.Fatalf("expected gaps_pending, got %s", p.Stage)
	}
	if gaps := p.Gaps(); len(gaps) != 1 || gaps[0] != 1 {
		t.Fatalf("expected gap at scene 1, got %v", gaps)
	}
	if _, err := f.runner.Start(context.Background(), "p1", project.StepValidateMatches); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error while gaps remain, got %v", err)
	}
}

func TestPublishFailureFailsProjectAndRetryDispatchesPendingOnly(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.publisher.fail["tiktok"] = true })
	f.create(t, "p1", "youtube", "tiktok")
	f.run(t, "p1",
		project.StepDownload,
		project.StepDetect,
		project.StepValidateScenes,
		project.StepTranscribe,
		project.StepRestructure,
		project.StepMatch,
		project.StepValidateMatches,
		project.StepRender,
	)

	err := f.runner.Run(context.Background(), "p1", project.StepPublish, nil)
	if !errors.Is(err, services.ErrExternalStep) {
		t.Fatalf("expected external step error, got %v", err)
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageFailed || p.Failure.Step != project.StepPublish {
		t.Fatalf("expected publish failure, got %s %+v", p.Stage, p.Failure)
	}
	if len(p.Dispatches) != 2 {
		t.Fatalf("expected both dispatches recorded, got %+v", p.Dispatches)
	}

	f.publisher.mu.Lock()
	f.publisher.fail = map[string]bool{}
	f.publisher.calls = nil
	f.publisher.mu.Unlock()

	stream, err := f.runner.Retry(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("publish retry: %v", err)
	}
	if got := f.publisher.calls; len(got) != 1 || got[0] != "tiktok" {
		t.Fatalf("retry should dispatch only the failed target, got %v", got)
	}
	if got := f.stage(t, "p1").Stage; got != project.StageCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestCancelledPublishKeepsDispatchedTargets(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "p1", "youtube", "tiktok")
	f.run(t, "p1",
		project.StepDownload,
		project.StepDetect,
		project.StepValidateScenes,
		project.StepTranscribe,
		project.StepRestructure,
		project.StepMatch,
		project.StepValidateMatches,
		project.StepRender,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.publisher.mu.Lock()
	f.publisher.after = func(string) { cancel() }
	f.publisher.mu.Unlock()

	err := f.runner.Run(ctx, "p1", project.StepPublish, nil)
	if !errors.Is(err, services.ErrStreamAborted) {
		t.Fatalf("expected aborted, got %v", err)
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageProcessing {
		t.Fatalf("cancelled publish moved the stage to %s", p.Stage)
	}
	if len(p.Dispatches) != 1 || p.Dispatches[0].Platform != "youtube" {
		t.Fatalf("the handed-off target must be recorded, got %+v", p.Dispatches)
	}
	if pending := p.PendingTargets(); len(pending) != 1 || pending[0].Platform != "tiktok" {
		t.Fatalf("pending = %+v", pending)
	}

	f.publisher.mu.Lock()
	f.publisher.after = nil
	f.publisher.calls = nil
	f.publisher.mu.Unlock()
	f.run(t, "p1", project.StepPublish)
	if got := f.publisher.calls; len(got) != 1 || got[0] != "tiktok" {
		t.Fatalf("second run should dispatch only tiktok, got %v", got)
	}
	if got := f.stage(t, "p1").Stage; got != project.StageCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestCancelMatchKeepsNoCandidates(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "p1")
	f.run(t, "p1",
		project.StepDownload,
		project.StepDetect,
		project.StepValidateScenes,
		project.StepTranscribe,
		project.StepRestructure,
	)

	errStop := errors.New("operator closed the stream")
	var scored int
	err := f.runner.Run(context.Background(), "p1", project.StepMatch, func(evt progress.Event) error {
		if strings.HasPrefix(evt.Message, "scene ") {
			scored++
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected the sink error, got %v", err)
	}
	if scored != 1 {
		t.Fatalf("sink saw %d scene events after stopping", scored)
	}
	p := f.stage(t, "p1")
	if p.Stage != project.StageScriptRestructured {
		t.Fatalf("cancelled match moved the stage to %s", p.Stage)
	}
	for i := 0; i < p.SceneCount(); i++ {
		if m, ok := p.Match(i); ok {
			t.Fatalf("scene %d kept a partial match %+v", i, m)
		}
	}
	if len(f.runner.Active()) != 0 {
		t.Fatalf("expected no active tasks, got %+v", f.runner.Active())
	}
}

func TestUnconfiguredCollaboratorRejectsStart(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.collab.Detector = nil })
	f.create(t, "p1")
	f.run(t, "p1", project.StepDownload)

	if _, err := f.runner.Start(context.Background(), "p1", project.StepDetect); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := f.stage(t, "p1").Stage; got != project.StageDownloading {
		t.Fatalf("configuration error must not fail the project, got %s", got)
	}
	for _, h := range f.runner.Health() {
		if h.Step == project.StepDetect && h.Ready {
			t.Fatal("detect reported ready without a detector")
		}
		if h.Step == project.StepValidateScenes && !h.Ready {
			t.Fatal("validate-scenes needs no collaborator")
		}
	}
}

func TestMutateRejectedChangeSavesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "p1")
	before := f.stage(t, "p1").Revision

	boom := errors.New("boom")
	if _, err := f.runner.Mutate(context.Background(), "p1", func(p *project.Project) error {
		p.Name = "changed"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	p := f.stage(t, "p1")
	if p.Revision != before || p.Name == "changed" {
		t.Fatalf("rejected mutation was saved: rev %d name %s", p.Revision, p.Name)
	}
}
