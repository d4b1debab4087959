package progress

import (
	"fmt"
	"math"
	"strings"
)

// Status identifies the kind of event.
type Status string

const (
	StatusProgress Status = "progress"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Event is one status report. Percent is optional; a nil value means the
// producer does not know how far along it is.
type Event struct {
	Status  Status   `json:"status"`
	Percent *float64 `json:"percent,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Progress builds a progress event. A negative percent is reported as unknown.
func Progress(percent float64, message string) Event {
	evt := Event{Status: StatusProgress, Message: strings.TrimSpace(message)}
	if percent >= 0 && !math.IsNaN(percent) {
		p := math.Min(percent, 100)
		evt.Percent = &p
	}
	return evt
}

// Complete builds the terminal success event.
func Complete(message string) Event {
	full := 100.0
	return Event{Status: StatusComplete, Percent: &full, Message: strings.TrimSpace(message)}
}

// Failed builds the terminal error event for err.
func Failed(err error) Event {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	return Event{Status: StatusError, Error: text}
}

// Terminal reports whether no further events may follow e.
func (e Event) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

// PercentOr returns the event percent or fallback when unknown.
func (e Event) PercentOr(fallback float64) float64 {
	if e.Percent == nil {
		return fallback
	}
	return *e.Percent
}

// Validate checks the event is well formed.
func (e Event) Validate() error {
	switch e.Status {
	case StatusProgress, StatusComplete:
		if e.Error != "" {
			return fmt.Errorf("%s event carries an error", e.Status)
		}
	case StatusError:
		if strings.TrimSpace(e.Error) == "" {
			return fmt.Errorf("error event without error text")
		}
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.Percent != nil && (*e.Percent < 0 || *e.Percent > 100 || math.IsNaN(*e.Percent)) {
		return fmt.Errorf("percent %v out of range", *e.Percent)
	}
	return nil
}

func (e Event) String() string {
	switch e.Status {
	case StatusError:
		return "error: " + e.Error
	case StatusComplete:
		if e.Message == "" {
			return "complete"
		}
		return "complete: " + e.Message
	}
	if e.Percent == nil {
		return e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("%5.1f%%", *e.Percent)
	}
	return fmt.Sprintf("%5.1f%% %s", *e.Percent, e.Message)
}
