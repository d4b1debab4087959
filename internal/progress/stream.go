package progress

import (
	"context"
	"errors"
	"sync"

	"recut/internal/services"
)

// ReportFunc emits a progress update; collaborators receive one instead of a
// Reporter so they can be driven without a Stream in tests.
type ReportFunc func(percent float64, message string) error

// Discard is a ReportFunc that drops every update.
func Discard(float64, string) error { return nil }

// Task is the producer side of a stream. It reports through r and returns a
// completion message or an error.
type Task func(ctx context.Context, r *Reporter) (string, error)

// Reporter pushes events for a running Task.
type Reporter struct {
	ctx    context.Context
	events chan<- Event
}

// Report emits a progress event. It blocks until the consumer takes the
// event and returns an ErrStreamAborted error once the stream was cancelled;
// producers must stop work when it does.
func (r *Reporter) Report(percent float64, message string) error {
	return r.send(Progress(percent, message))
}

// Aborted reports the cancellation error without emitting anything. Producers
// that do not emit often use it to check in between reports.
func (r *Reporter) Aborted() error {
	if err := r.ctx.Err(); err != nil {
		return services.Wrap(services.ErrStreamAborted, "progress", "report", "stream cancelled", err)
	}
	return nil
}

func (r *Reporter) send(evt Event) error {
	if err := r.Aborted(); err != nil {
		return err
	}
	select {
	case r.events <- evt:
		return nil
	case <-r.ctx.Done():
		return r.Aborted()
	}
}

// Stream is the consumer side of a running Task.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Start runs task in its own goroutine. The returned stream closes its
// Events channel after the terminal event, or without one when cancelled.
func Start(ctx context.Context, task Task) *Stream {
	runCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)
	s := &Stream{events: events, cancel: cancel, done: make(chan struct{})}
	reporter := &Reporter{ctx: runCtx, events: events}

	go func() {
		defer close(s.done)
		defer close(events)
		defer cancel()

		message, err := task(runCtx, reporter)
		if err == nil && runCtx.Err() != nil {
			err = reporter.Aborted()
		}
		switch {
		case err == nil:
			// The terminal event is authoritative; deliver it unless the
			// consumer has already gone away.
			_ = reporter.send(Complete(message))
		case services.IsAborted(err) || runCtx.Err() != nil:
			if !errors.Is(err, services.ErrStreamAborted) {
				err = services.Wrap(services.ErrStreamAborted, "progress", "run", "stream cancelled", err)
			}
		default:
			_ = reporter.send(Failed(err))
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
	return s
}

// Events returns the event channel.
func (s *Stream) Events() <-chan Event { return s.events }

// Cancel asks the producer to stop. It is safe to call more than once.
func (s *Stream) Cancel() { s.cancel() }

// Done is closed once the producer has returned.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait drains any remaining events and returns the task result: nil, the
// task error, or an ErrStreamAborted error after cancellation.
func (s *Stream) Wait() error {
	for range s.events {
	}
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Drain forwards every event to fn until the stream ends. An error from fn
// cancels the producer; Drain then returns that error.
func (s *Stream) Drain(fn func(Event) error) error {
	var sinkErr error
	for evt := range s.events {
		if sinkErr != nil {
			continue
		}
		if err := fn(evt); err != nil {
			sinkErr = err
			s.Cancel()
		}
	}
	err := s.Wait()
	if sinkErr != nil {
		return sinkErr
	}
	return err
}
