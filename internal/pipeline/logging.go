package pipeline

import (
	"context"

	"recut/internal/logging"
	"recut/internal/project"
	"recut/internal/services"
)

func (r *Runner) logTransition(ctx context.Context, step project.Step, from, to project.Stage) {
	if from == to {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String(logging.FieldStage, string(to)),
	}
	if _, ok := services.StepFromContext(ctx); !ok && step != "" {
		attrs = append(attrs, logging.String(logging.FieldStep, string(step)))
	}
	logging.WithContext(ctx, r.logger).Info("stage transition", logging.Args(attrs...)...)
}

func (r *Runner) logFailure(ctx context.Context, step project.Step, reason string) {
	logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "step failed", "step_failed",
		logging.String("failed_step", string(step)),
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "fix the cause, then retry the project"),
	)
}
