package pipeline

import (
	"context"
	"errors"
	"fmt"

	"recut/internal/logging"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
)

// outcome is what a step hands back for commit. apply runs against the
// current project under its lock and returns the completion message.
// A retained outcome is committed even when the step itself errored, for
// side effects that already left the process.
type outcome struct {
	apply  func(p *project.Project) (string, error)
	retain bool
}

type performFunc func(ctx context.Context, snap *project.Project, report progress.ReportFunc) (outcome, error)

// execute runs step against a snapshot without holding the project lock,
// then commits the result. Nothing is written when the run is cancelled
// unless the step returned a retained outcome.
func (r *Runner) execute(ctx context.Context, projectID string, step project.Step, report progress.ReportFunc) (string, error) {
	logger := logging.WithContext(ctx, r.logger)
	snap, err := r.store.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if err := snap.CheckStep(step); err != nil {
		return "", err
	}
	perform, ok := r.performers()[step]
	if !ok {
		return "", services.Wrap(services.ErrValidation, string(step), "run", "unknown step", nil)
	}

	logger.Info("step started",
		logging.String(logging.FieldEventType, "step_started"),
		logging.String(logging.FieldStage, string(snap.Stage)),
	)
	logSink := progress.Logger(logger, string(step))
	tracked := func(percent float64, message string) error {
		_ = logSink(progress.Progress(percent, message))
		return report(percent, message)
	}

	out, err := perform(ctx, snap, tracked)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if out.retain && out.apply != nil {
			if _, cerr := r.commit(context.WithoutCancel(ctx), projectID, step, snap.Revision, out); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
		return "", r.handleStepError(ctx, projectID, step, err)
	}
	return r.commit(ctx, projectID, step, snap.Revision, out)
}

func (r *Runner) handleStepError(ctx context.Context, projectID string, step project.Step, err error) error {
	logger := logging.WithContext(ctx, r.logger)
	switch {
	case services.IsAborted(err) || ctx.Err() != nil:
		logger.Info("step cancelled; project unchanged",
			logging.String(logging.FieldEventType, "step_cancelled"),
		)
		if !errors.Is(err, services.ErrStreamAborted) {
			err = services.Wrap(services.ErrStreamAborted, string(step), "run", "cancelled", err)
		}
		return err
	case errors.Is(err, services.ErrConfiguration):
		logging.WarnWithContext(logger, "step not runnable", "step_misconfigured",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "configure the collaborator command for this step"),
			logging.String(logging.FieldImpact, "project stage unchanged"),
		)
		return err
	case !step.External():
		return err
	}
	if ferr := r.fail(context.WithoutCancel(ctx), projectID, step, err); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// commit re-reads the project under its lock and applies the step result.
// Any change made while the step ran invalidates the result.
func (r *Runner) commit(ctx context.Context, projectID string, step project.Step, revision int64, out outcome) (string, error) {
	release, err := r.locks.Acquire(ctx, projectID)
	if err != nil {
		return "", r.handleStepError(ctx, projectID, step, err)
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return "", r.handleStepError(ctx, projectID, step, err)
	}
	ctx = context.WithoutCancel(ctx)

	cur, err := r.store.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if cur.Revision != revision {
		return "", services.Wrap(services.ErrConflict, string(step), "commit",
			fmt.Sprintf("project changed while %s was running (revision %d, now %d)", step, revision, cur.Revision), nil)
	}
	before := cur.Stage
	message, err := out.apply(cur)
	if err != nil {
		if !step.External() || !errors.Is(err, services.ErrValidation) {
			return "", err
		}
		// Collaborator output the project cannot accept counts as a step
		// failure.
		if ferr := r.failLocked(ctx, cur, step, err); ferr != nil {
			return "", errors.Join(err, ferr)
		}
		return "", err
	}
	if err := r.store.Save(ctx, cur); err != nil {
		return "", err
	}
	r.logTransition(ctx, step, before, cur.Stage)
	if cur.Stage == project.StageFailed && cur.Failure != nil {
		r.logFailure(ctx, step, cur.Failure.Reason)
		return "", services.Wrap(services.ErrExternalStep, string(step), "run", cur.Failure.Reason, nil)
	}
	return message, nil
}

func (r *Runner) fail(ctx context.Context, projectID string, step project.Step, cause error) error {
	release, err := r.locks.Acquire(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	cur, err := r.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	return r.failLocked(ctx, cur, step, cause)
}

func (r *Runner) failLocked(ctx context.Context, cur *project.Project, step project.Step, cause error) error {
	before := cur.Stage
	if err := cur.Fail(step, cause.Error(), r.now()); err != nil {
		return err
	}
	if err := r.store.Save(ctx, cur); err != nil {
		return err
	}
	r.logTransition(ctx, step, before, cur.Stage)
	r.logFailure(ctx, step, cause.Error())
	return nil
}
