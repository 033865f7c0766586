package engines

import (
	"context"
	"log/slog"
	"time"

	"clovis/internal/logging"
	"clovis/internal/services"
)

// Adapter runs a primary engine with transient-failure retries and falls back
// to a built-in engine when the primary is unavailable or keeps failing.
// Fatal errors from the primary are returned as-is; the fallback only covers
// availability and transient problems.
type Adapter struct {
	stage    string
	primary  Engine
	fallback Engine
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewAdapter wires a primary/fallback pair for one stage. fallback may not be
// nil; retries bounds the transient retry attempts on the primary.
func NewAdapter(stage string, primary, fallback Engine, retries int, backoff time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Adapter{
		stage:    stage,
		primary:  primary,
		fallback: fallback,
		retries:  retries,
		backoff:  backoff,
		logger:   logger.With(logging.String(logging.FieldStage, stage)),
	}
}

// Stage returns the pipeline stage this adapter serves.
func (a *Adapter) Stage() string { return a.stage }

// PrimaryName returns the primary engine's name.
func (a *Adapter) PrimaryName() string {
	if a.primary == nil {
		return ""
	}
	return a.primary.Name()
}

// ProbePrimary reports whether the primary engine could run right now.
func (a *Adapter) ProbePrimary(ctx context.Context) error {
	if a.primary == nil {
		return services.Wrap(services.ErrEngineUnavailable, a.stage, "probe", "no primary engine configured", nil)
	}
	return a.primary.Available(ctx)
}

// Run executes the stage, preferring the primary engine. The returned result
// always names the engine that actually produced the output.
func (a *Adapter) Run(ctx context.Context, req Request) (*Result, error) {
	if a.primary != nil {
		if err := a.primary.Available(ctx); err != nil {
			a.logger.Warn("primary engine unavailable, using fallback",
				logging.String(logging.FieldEngine, a.primary.Name()),
				logging.Error(err))
		} else {
			result, err := a.runWithRetry(ctx, a.primary, req)
			if err == nil {
				return result, nil
			}
			if services.IsFatal(err) {
				return nil, err
			}
			a.logger.Warn("primary engine failed, using fallback",
				logging.String(logging.FieldEngine, a.primary.Name()),
				logging.Error(err))
		}
	}

	if a.fallback == nil {
		return nil, services.Wrap(services.ErrEngineUnavailable, a.stage, "run",
			"no engine available for stage", nil)
	}

	result, err := a.fallback.Execute(ctx, req)
	if err != nil {
		return nil, services.Wrap(services.ErrProcessing, a.stage, "fallback",
			"fallback engine failed", err)
	}
	if result.Engine == "" {
		result.Engine = a.fallback.Name()
	}
	return result, nil
}

func (a *Adapter) runWithRetry(ctx context.Context, engine Engine, req Request) (*Result, error) {
	delay := a.backoff
	var lastErr error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			a.logger.Info("retrying engine after transient failure",
				logging.String(logging.FieldEngine, engine.Name()),
				logging.Int("attempt", attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, services.Wrap(services.ErrTimeout, a.stage, "retry", "stage cancelled while backing off", ctx.Err())
			}
			delay *= 2
		}

		result, err := engine.Execute(ctx, req)
		if err == nil {
			if result.Engine == "" {
				result.Engine = engine.Name()
			}
			return result, nil
		}
		lastErr = err
		if services.IsFatal(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
