package progress

import (
	"log/slog"

	"recut/internal/logging"
)

// Logger returns an event sink that writes sampled progress to logger:
// progress lines only when they cross a 5% bucket, terminal events always.
func Logger(logger *slog.Logger, phase string) func(Event) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	sampler := logging.NewProgressSampler(5)
	return func(evt Event) error {
		switch evt.Status {
		case StatusProgress:
			if sampler.ShouldLog(evt.PercentOr(-1), phase) {
				logger.Info("progress",
					logging.String(logging.FieldEventType, "progress"),
					logging.String("phase", phase),
					logging.Float64("percent", evt.PercentOr(-1)),
					logging.String("message", evt.Message),
				)
			}
		case StatusComplete:
			logger.Info("step complete",
				logging.String(logging.FieldEventType, "progress_complete"),
				logging.String("phase", phase),
				logging.String("message", evt.Message),
			)
		case StatusError:
			logger.Warn("step failed",
				logging.String(logging.FieldEventType, "progress_error"),
				logging.String("phase", phase),
				logging.String(logging.FieldErrorHint, "see the error text for the failing collaborator"),
				logging.String("error", evt.Error),
			)
		}
		return nil
	}
}

// Tee fans an event out to several sinks, stopping at the first error.
func Tee(sinks ...func(Event) error) func(Event) error {
	return func(evt Event) error {
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink(evt); err != nil {
				return err
			}
		}
		return nil
	}
}
