package project

import (
	"context"
	"sync"

	"recut/internal/services"
)

// Locks serializes mutation per project id. Waiters queue until the holder
// releases or their context ends.
type Locks struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{slots: make(map[string]*slot)}
}

// Acquire blocks until the project lock is held. The returned release must be
// called exactly once.
func (l *Locks) Acquire(ctx context.Context, projectID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[projectID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[projectID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(projectID, s)
		return nil, services.Wrap(services.ErrConflict, "project", "lock",
			"another edit is still in progress for "+projectID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(projectID, s)
		})
	}, nil
}

func (l *Locks) unref(projectID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, projectID)
	}
}
