package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"clovis/internal/config"
	"clovis/internal/logging"
	"clovis/internal/services"
)

// RunFunc executes one claimed job. Returning an error marks the job failed;
// the project-level state is the run function's responsibility.
type RunFunc func(ctx context.Context, job *Job) error

// Pool runs queued jobs on a fixed number of workers with heartbeat-based
// crash recovery.
type Pool struct {
	store  *Store
	run    RunFunc
	logger *slog.Logger

	workers           int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool builds a worker pool from the workflow configuration.
func NewPool(cfg *config.Config, store *Store, run RunFunc, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		store:             store,
		run:               run,
		logger:            logger.With(logging.String(logging.FieldComponent, "jobs")),
		workers:           workers,
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

// Start recovers interrupted work and launches the workers. It returns
// immediately; work proceeds until Stop or context cancellation.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("job pool already running")
	}

	recovered, err := p.store.ResetStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		p.logger.Info("requeued interrupted jobs", logging.Int64("count", recovered))
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(runCtx, i)
	}
	p.wg.Add(1)
	go p.reclaimLoop(runCtx)

	p.logger.Info("job pool started", logging.Int("workers", p.workers))
	return nil
}

// Stop halts the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("job pool stopped")
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(logging.Int("worker", id))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// drain available jobs before sleeping
		for {
			if ctx.Err() != nil {
				return
			}
			job, err := p.store.Claim(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("claim job", logging.Error(err))
				}
				break
			}
			if job == nil {
				break
			}
			p.execute(ctx, logger, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) execute(ctx context.Context, logger *slog.Logger, job *Job) {
	logger = logger.With(
		logging.String(logging.FieldProjectID, job.ProjectID),
		logging.Int64("job_id", job.ID))
	logger.Info("job started", logging.Int("attempt", job.Attempts))

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		ticker := time.NewTicker(p.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := p.store.Heartbeat(heartbeatCtx, job.ID); err != nil && heartbeatCtx.Err() == nil {
					logger.Warn("job heartbeat", logging.Error(err))
				}
			}
		}
	}()

	err := p.run(ctx, job)
	stopHeartbeat()
	hbDone.Wait()

	// finish bookkeeping must outlive a cancelled run context
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err != nil {
		logger.Error("job failed", logging.Error(err))
		if storeErr := p.store.Fail(finishCtx, job.ID, services.UserMessage(err)); storeErr != nil {
			logger.Error("record job failure", logging.Error(storeErr))
		}
		return
	}
	if storeErr := p.store.Complete(finishCtx, job.ID); storeErr != nil {
		logger.Error("record job completion", logging.Error(storeErr))
	}
	logger.Info("job complete")
}

func (p *Pool) reclaimLoop(ctx context.Context) {
	defer p.wg.Done()
	interval := p.heartbeatInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-p.heartbeatTimeout)
			reclaimed, err := p.store.ReclaimStale(ctx, cutoff)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("reclaim stale jobs", logging.Error(err))
				}
				continue
			}
			if reclaimed > 0 {
				p.logger.Warn("reclaimed stale jobs", logging.Int64("count", reclaimed))
			}
		}
	}
}
