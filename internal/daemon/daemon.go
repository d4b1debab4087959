package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"recut/internal/api"
	"recut/internal/config"
	"recut/internal/logging"
	"recut/internal/pipeline"
	"recut/internal/store"
)

// Daemon owns the API server and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	runner *pipeline.Runner
	hub    *logging.StreamHub
	deps   func() []api.DependencyStatus

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithLogStream exposes hub through GET /api/logs.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(d *Daemon) { d.hub = hub }
}

// WithDependencies reports external command availability in status replies.
func WithDependencies(fn func() []api.DependencyStatus) Option {
	return func(d *Daemon) { d.deps = fn }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, runner *pipeline.Runner, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || runner == nil {
		return nil, errors.New("daemon requires config, store, and pipeline runner")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		runner:   runner,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg.API, d, logger)
	return d, nil
}

// Start acquires the daemon lock and starts serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another recut daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("recut daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("address", d.Addr()),
	)
	return nil
}

// Stop cancels running steps, stops the API and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	for _, task := range d.runner.Active() {
		d.runner.Cancel(task.ProjectID)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.String(logging.FieldImpact, "next daemon start may report a running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("recut daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string { return d.api.addr() }

// Handler returns the API handler, authentication included.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.StatusResponse, error) {
	counts, err := d.store.StageCounts(ctx)
	if err != nil {
		return api.StatusResponse{}, err
	}
	stages := make(map[string]int, len(counts))
	for stage, n := range counts {
		stages[string(stage)] = n
	}
	status := api.StatusResponse{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
		Stages:       stages,
		Active:       d.runner.Active(),
		Steps:        d.runner.Health(),
	}
	if d.deps != nil {
		status.Dependencies = d.deps()
	}
	return status, nil
}
