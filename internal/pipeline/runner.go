package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/reconcile"
	"recut/internal/services"
)

// Store is the persistence the runner needs.
type Store interface {
	Create(ctx context.Context, p *project.Project) error
	Get(ctx context.Context, id string) (*project.Project, error)
	Save(ctx context.Context, p *project.Project) error
	Delete(ctx context.Context, id string) error
}

// Runner executes steps and serializes project mutation.
type Runner struct {
	store     Store
	collab    Collaborators
	locks     *project.Locks
	tasks     *registry
	matcher   *matching.Matcher
	estimator *reconcile.Estimator
	logger    *slog.Logger
	workDir   func(projectID string) string
	interval  float64
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMatcher sets the matching engine.
func WithMatcher(m *matching.Matcher) Option {
	return func(r *Runner) { r.matcher = m }
}

// WithEstimator sets the duration estimator used by restructure and script
// edits.
func WithEstimator(e *reconcile.Estimator) Option {
	return func(r *Runner) { r.estimator = e }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithWorkDir sets where per-project media goes.
func WithWorkDir(fn func(projectID string) string) Option {
	return func(r *Runner) { r.workDir = fn }
}

// WithFrameInterval sets the sampling interval for the edited video's
// fingerprint.
func WithFrameInterval(seconds float64) Option {
	return func(r *Runner) {
		if seconds > 0 {
			r.interval = seconds
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New constructs a runner.
func New(store Store, collab Collaborators, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, errors.New("pipeline store is nil")
	}
	r := &Runner{
		store:    store,
		collab:   collab,
		locks:    project.NewLocks(),
		tasks:    newRegistry(),
		logger:   logging.NewNop(),
		workDir:  func(id string) string { return filepath.Join(os.TempDir(), "recut", id) },
		interval: 0.5,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "pipeline")
	if r.matcher == nil {
		r.matcher = matching.NewMatcher(matching.WithLogger(r.logger))
	}
	if r.estimator == nil {
		est, err := reconcile.NewEstimator(reconcile.DefaultRates())
		if err != nil {
			return nil, err
		}
		r.estimator = est
	}
	return r, nil
}

// Estimator returns the duration estimator.
func (r *Runner) Estimator() *reconcile.Estimator { return r.estimator }

// Library returns the configured source library, which may be nil.
func (r *Runner) Library() matching.Library { return r.collab.Library }

// Create stores a new project.
func (r *Runner) Create(ctx context.Context, p *project.Project) error {
	if err := r.store.Create(ctx, p); err != nil {
		return err
	}
	logging.WithContext(services.WithProjectID(ctx, p.ID), r.logger).Info("project created",
		logging.String(logging.FieldEventType, "project_created"),
		logging.String(logging.FieldStage, string(p.Stage)),
	)
	return nil
}

// Get loads a project.
func (r *Runner) Get(ctx context.Context, projectID string) (*project.Project, error) {
	return r.store.Get(ctx, projectID)
}

// Delete removes a project that has no running step, along with its work
// directory.
func (r *Runner) Delete(ctx context.Context, projectID string) error {
	if t, ok := r.tasks.running(projectID); ok {
		return services.Wrap(services.ErrConflict, "project", "delete",
			fmt.Sprintf("step %s is running; cancel it first", t.Step), nil)
	}
	release, err := r.locks.Acquire(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	if err := r.store.Delete(ctx, projectID); err != nil {
		return err
	}
	logger := logging.WithContext(services.WithProjectID(ctx, projectID), r.logger)
	if dir := r.workDir(projectID); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			logging.WarnWithContext(logger, "project work directory not removed", "workdir_cleanup_failed",
				logging.Error(err),
				logging.String("work_dir", dir),
				logging.String(logging.FieldImpact, "downloaded and rendered media remain on disk"),
			)
		}
	}
	logger.Info("project deleted", logging.String(logging.FieldEventType, "project_deleted"))
	return nil
}

// Mutate applies fn to the current project under the project lock and saves
// the result. A rejected change (fn error) saves nothing.
func (r *Runner) Mutate(ctx context.Context, projectID string, fn func(p *project.Project) error) (*project.Project, error) {
	release, err := r.locks.Acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := r.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	before := p.Stage
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := r.store.Save(ctx, p); err != nil {
		return nil, err
	}
	if p.Stage != before {
		r.logTransition(services.WithProjectID(ctx, projectID), "", before, p.Stage)
	}
	return p, nil
}

// Active lists running steps.
func (r *Runner) Active() []Task { return r.tasks.active() }

// Running reports the step running for a project, if any.
func (r *Runner) Running(projectID string) (Task, bool) { return r.tasks.running(projectID) }

// Cancel stops the running step of a project. It reports whether one was
// running.
func (r *Runner) Cancel(projectID string) bool {
	ok := r.tasks.cancel(projectID)
	if ok {
		logging.WithContext(services.WithProjectID(context.Background(), projectID), r.logger).Info("step cancel requested",
			logging.String(logging.FieldEventType, "step_cancel_requested"),
		)
	}
	return ok
}

// Start validates that step may run and launches it. The returned stream ends
// with the step's terminal event; cancelling it (or ctx) rolls the step back.
func (r *Runner) Start(ctx context.Context, projectID string, step project.Step) (*progress.Stream, error) {
	p, err := r.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := p.CheckStep(step); err != nil {
		return nil, err
	}
	if h := r.health(step); !h.Ready {
		return nil, services.Wrap(services.ErrConfiguration, string(step), "start", h.Detail, nil)
	}
	token, err := r.tasks.begin(projectID, step, r.now().UTC())
	if err != nil {
		return nil, err
	}

	runCtx := services.WithRequestID(services.WithStep(services.WithProjectID(ctx, projectID), string(step)), uuid.NewString())
	stream := progress.Start(runCtx, func(taskCtx context.Context, rep *progress.Reporter) (string, error) {
		defer r.tasks.end(projectID, token)
		return r.execute(taskCtx, projectID, step, rep.Report)
	})
	r.tasks.attach(projectID, token, stream.Cancel)
	return stream, nil
}

// Run starts step and blocks until it finishes, forwarding events to sink.
func (r *Runner) Run(ctx context.Context, projectID string, step project.Step, sink func(progress.Event) error) error {
	stream, err := r.Start(ctx, projectID, step)
	if err != nil {
		return err
	}
	if sink == nil {
		return stream.Wait()
	}
	return stream.Drain(sink)
}

// Retry rewinds a failed project to its last good stage and starts the step
// that failed.
func (r *Runner) Retry(ctx context.Context, projectID string) (*progress.Stream, error) {
	var step project.Step
	if _, err := r.Mutate(ctx, projectID, func(p *project.Project) error {
		s, err := p.Rewind()
		step = s
		return err
	}); err != nil {
		return nil, err
	}
	logging.WithContext(services.WithProjectID(ctx, projectID), r.logger).Info("retrying failed step",
		logging.String(logging.FieldEventType, "step_retry"),
		logging.String(logging.FieldStep, string(step)),
	)
	return r.Start(ctx, projectID, step)
}

// Health reports readiness of every step's collaborator.
func (r *Runner) Health() []Health {
	out := make([]Health, 0, len(project.AllSteps()))
	for _, step := range project.AllSteps() {
		out = append(out, r.health(step))
	}
	return out
}

func (r *Runner) health(step project.Step) Health {
	var (
		need any
		name string
	)
	switch step {
	case project.StepDownload:
		need, name = r.collab.Downloader, "downloader"
	case project.StepDetect:
		need, name = r.collab.Detector, "scene detector"
	case project.StepTranscribe:
		need, name = r.collab.Transcriber, "transcriber"
	case project.StepRestructure:
		need, name = r.collab.Restructurer, "restructurer"
	case project.StepRender:
		need, name = r.collab.Renderer, "renderer"
	case project.StepPublish:
		need, name = r.collab.Publisher, "publish dispatcher"
	case project.StepMatch:
		if !present(r.collab.Library) {
			return unhealthy(step, "source library not configured")
		}
		need, name = r.collab.Fingerprinter, "fingerprinter"
	default:
		return healthy(step)
	}
	if !present(need) {
		return unhealthy(step, name+" not configured")
	}
	return healthy(step)
}
