package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"clovis/internal/api"
	"clovis/internal/config"
	"clovis/internal/engines"
	"clovis/internal/jobs"
	"clovis/internal/logging"
	"clovis/internal/pipeline"
	"clovis/internal/progress"
	"clovis/internal/projects"
	"clovis/internal/services"
)

// Daemon coordinates the worker pool and the API server and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store  *projects.Store
	queue  *jobs.Store
	set    *engines.Set
	hub    *progress.Hub
	runner *pipeline.Runner
	pool   *jobs.Pool
	server *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized stores and services.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := projects.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open project store: %w", err)
	}
	queue, err := jobs.Open(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}

	set := engines.NewSet(cfg, logger)
	hub := progress.NewHub()
	runner := pipeline.NewRunner(cfg, store, set, hub, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		queue:    queue,
		set:      set,
		hub:      hub,
		runner:   runner,
		lockPath: filepath.Join(cfg.Paths.LogDir, "clovisd.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.pool = jobs.NewPool(cfg, queue, d.runJob, logger)

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		d.closeStores()
		return nil, err
	}
	d.server = server
	return d, nil
}

// Store exposes the project store for CLI-embedded use.
func (d *Daemon) Store() *projects.Store { return d.store }

// Hub exposes the progress hub.
func (d *Daemon) Hub() *progress.Hub { return d.hub }

// Addr reports the API listen address once Start has succeeded.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.addr()
}

// Start acquires the instance lock, recovers interrupted work, and launches
// the worker pool and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clovis daemon is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// projects stuck in a processing status from a crash move to error;
	// their queued jobs are reset by the pool and re-claim on pickup
	recovered, err := d.store.ResetStuckProcessing(runCtx)
	if err != nil {
		d.releaseOnStartFailure()
		return fmt.Errorf("recover interrupted projects: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("recovered interrupted projects", logging.Int64("count", recovered))
	}

	if err := d.pool.Start(runCtx); err != nil {
		d.releaseOnStartFailure()
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.pool.Stop()
		d.releaseOnStartFailure()
		return err
	}

	d.running.Store(true)
	d.logger.Info("clovis daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.Addr()))
	return nil
}

func (d *Daemon) releaseOnStartFailure() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// Stop halts background work and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("clovis daemon stopped")
}

// Close stops the daemon and releases its stores.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeStores()
}

func (d *Daemon) closeStores() error {
	var firstErr error
	if d.queue != nil {
		if err := d.queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runJob executes one claimed queue job. A processing project hands its run
// over via the token CAS, so a duplicate delivery of the same job loses and
// fails without touching the project. Jobs reclaimed after a crash find their
// project out of the processing states and re-take the lock instead.
func (d *Daemon) runJob(ctx context.Context, job *jobs.Job) error {
	project, err := d.store.GetByID(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		return services.Wrap(services.ErrNotFound, "daemon", "run-job", "project no longer exists", nil)
	}
	if project.IsProcessing() {
		if err := d.store.AdoptRun(ctx, job.ProjectID, job.RunToken); err != nil {
			return err
		}
	} else {
		if _, err := d.store.BeginPipeline(ctx, job.ProjectID); err != nil {
			return err
		}
	}
	return d.runner.Run(ctx, job.ProjectID, pipeline.Options{StopAfterMelody: job.StopAfterMelody})
}

// Status collects runtime diagnostics for the status endpoint and CLI.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		ProjectsDB:   d.store.Path(),
		JobsDB:       d.queue.Path(),
		LockFilePath: d.lockPath,
		Workers:      d.cfg.Workflow.Workers,
	}

	projectStats, err := d.store.Stats(ctx)
	if err != nil {
		return status, err
	}
	status.ProjectCounts = api.MergeProjectStats(projectStats)

	jobCounts, err := d.queue.Counts(ctx)
	if err != nil {
		return status, err
	}
	status.JobCounts = make(map[string]int, len(jobCounts))
	for jobStatus, count := range jobCounts {
		status.JobCounts[string(jobStatus)] = count
	}

	for _, adapter := range d.set.Adapters() {
		probe := api.EngineStatus{
			Stage:     adapter.Stage(),
			Name:      adapter.PrimaryName(),
			Available: true,
		}
		if err := adapter.ProbePrimary(ctx); err != nil {
			probe.Available = false
			probe.Detail = services.UserMessage(err)
		}
		status.Engines = append(status.Engines, probe)
	}
	return status, nil
}
