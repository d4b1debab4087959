package pipeline

import (
	"sort"
	"sync"
	"time"

	"recut/internal/project"
	"recut/internal/services"
)

// Task describes a running step.
type Task struct {
	ProjectID string       `json:"project_id"`
	Step      project.Step `json:"step"`
	StartedAt time.Time    `json:"started_at"`
}

type task struct {
	Task
	token     uint64
	cancel    func()
	cancelled bool
}

// registry allows one running step per project.
type registry struct {
	mu    sync.Mutex
	next  uint64
	tasks map[string]*task
}

func newRegistry() *registry {
	return &registry{tasks: make(map[string]*task)}
}

func (r *registry) begin(projectID string, step project.Step, now time.Time) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if running, ok := r.tasks[projectID]; ok {
		return 0, services.Wrap(services.ErrConflict, string(step), "start",
			"step "+string(running.Step)+" is already running for "+projectID, nil)
	}
	r.next++
	r.tasks[projectID] = &task{Task: Task{ProjectID: projectID, Step: step, StartedAt: now}, token: r.next}
	return r.next, nil
}

// attach records the cancel func, running it at once when Cancel came first.
func (r *registry) attach(projectID string, token uint64, cancel func()) {
	r.mu.Lock()
	t, ok := r.tasks[projectID]
	if !ok || t.token != token {
		r.mu.Unlock()
		return
	}
	t.cancel = cancel
	cancelled := t.cancelled
	r.mu.Unlock()
	if cancelled {
		cancel()
	}
}

func (r *registry) end(projectID string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[projectID]; ok && t.token == token {
		delete(r.tasks, projectID)
	}
}

func (r *registry) cancel(projectID string) bool {
	r.mu.Lock()
	t, ok := r.tasks[projectID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	t.cancelled = true
	cancel := t.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

func (r *registry) active() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out
}

func (r *registry) running(projectID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[projectID]
	if !ok {
		return Task{}, false
	}
	return t.Task, true
}
