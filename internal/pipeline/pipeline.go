// Package pipeline runs the fixed vocal production sequence for a project:
// analysis, melody, synthesis, refinement, mix. The runner assumes the caller
// already claimed the pipeline lock through the project store and is solely
// responsible for releasing it into a terminal state.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clovis/internal/artifacts"
	"clovis/internal/config"
	"clovis/internal/engines"
	"clovis/internal/logging"
	"clovis/internal/progress"
	"clovis/internal/projects"
	"clovis/internal/services"
)

// StageWeights assigns each stage its share of overall completion. Synthesis
// dominates because it does by far the most work.
var StageWeights = []progress.StageWeight{
	{Step: string(projects.StepAnalysis), Weight: 10},
	{Step: string(projects.StepMelody), Weight: 15},
	{Step: string(projects.StepSynthesis), Weight: 35},
	{Step: string(projects.StepRefinement), Weight: 20},
	{Step: string(projects.StepMix), Weight: 20},
}

// Runner executes pipelines against the project store and engine set.
type Runner struct {
	cfg     *config.Config
	store   *projects.Store
	engines *engines.Set
	hub     *progress.Hub
	logger  *slog.Logger
}

// NewRunner constructs a pipeline runner. hub may be nil when nobody watches.
func NewRunner(cfg *config.Config, store *projects.Store, set *engines.Set, hub *progress.Hub, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		store:   store,
		engines: set,
		hub:     hub,
		logger:  logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// Options tunes a single pipeline run.
type Options struct {
	// StopAfterMelody halts the run at the melody checkpoint so the melody
	// can be reviewed before synthesis.
	StopAfterMelody bool
}

// Run executes every pending stage for a project whose lock was already
// claimed via BeginPipeline. Completed stages are skipped, so a re-run after
// a failure resumes at the stage that failed. The project always leaves in a
// terminal state: completed, melody_ready, or error.
func (r *Runner) Run(ctx context.Context, projectID string, opts Options) error {
	logger := r.logger.With(logging.String(logging.FieldProjectID, projectID))
	ctx = services.WithProjectID(ctx, projectID)

	project, err := r.store.GetByID(ctx, projectID)
	if err != nil {
		return r.fail(ctx, logger, projectID, "", err)
	}
	if project == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "run", "project not found", nil)
	}

	layout := artifacts.NewLayout(r.cfg, projectID)
	if err := layout.Ensure(); err != nil {
		return r.fail(ctx, logger, projectID, "", services.Wrap(services.ErrProcessing, "pipeline", "run", "prepare workspace", err))
	}

	resume, pending := projects.NextPendingStep(project, layout.Presence())
	if !pending {
		logger.Info("all stages already complete")
		return r.complete(ctx, logger, projectID)
	}

	// wipe stale later-stage outputs so the resumed run regenerates them
	if err := layout.ClearFrom(resume); err != nil {
		return r.fail(ctx, logger, projectID, resume, services.Wrap(services.ErrProcessing, "pipeline", "run", "clear stale artifacts", err))
	}

	tracker := progress.NewTracker(StageWeights, time.Now())
	logger.Info("pipeline started", logging.String("resume_step", string(resume)))

	active := false
	for _, step := range projects.PipelineOrder {
		if step == resume {
			active = true
		}
		if !active {
			continue
		}

		if err := r.runStage(ctx, project, layout, step, tracker); err != nil {
			return r.fail(ctx, logger, projectID, step, err)
		}

		// reload: analysis mutates project metadata
		project, err = r.store.GetByID(ctx, projectID)
		if err != nil || project == nil {
			return r.fail(ctx, logger, projectID, step, services.Wrap(services.ErrProcessing, "pipeline", "run", "reload project", err))
		}

		if step == projects.StepMelody && opts.StopAfterMelody {
			if err := r.store.MarkMelodyReady(ctx, projectID); err != nil {
				return r.fail(ctx, logger, projectID, step, err)
			}
			r.publishStatus(projectID, projects.StatusMelodyReady, step, 100, "melody ready for review", tracker)
			logger.Info("pipeline paused at melody checkpoint")
			return nil
		}
	}

	return r.complete(ctx, logger, projectID)
}

func (r *Runner) complete(ctx context.Context, logger *slog.Logger, projectID string) error {
	if err := r.store.CompletePipeline(ctx, projectID); err != nil {
		return err
	}
	r.publish(progress.Event{
		Type:      progress.TypeStatus,
		ProjectID: projectID,
		Progress:  100,
		Status:    string(projects.StatusCompleted),
		Message:   "pipeline complete",
	})
	logger.Info("pipeline complete")
	return nil
}

// fail releases the lock into the error state and reports the failure. The
// original error is returned for the caller's retry accounting.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, projectID string, step projects.Step, err error) error {
	message := services.UserMessage(err)
	logger.Error("pipeline failed",
		logging.String(logging.FieldStage, string(step)),
		logging.Error(err))

	// release the lock even when the run context is already dead
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if storeErr := r.store.FailPipeline(failCtx, projectID, step, message); storeErr != nil {
		logger.Error("release pipeline lock", logging.Error(storeErr))
	}

	r.publish(progress.Event{
		Type:      progress.TypeError,
		ProjectID: projectID,
		Step:      string(step),
		Status:    string(projects.StatusError),
		Message:   message,
	})
	return err
}

func (r *Runner) publish(evt progress.Event) {
	if r.hub != nil {
		r.hub.Publish(evt)
	}
}

func (r *Runner) publishStatus(projectID string, status projects.Status, step projects.Step, stagePercent int, message string, tracker *progress.Tracker) {
	overall := tracker.Overall(string(step), stagePercent)
	elapsed, eta := tracker.Estimate(overall, time.Now())
	r.publish(progress.Event{
		Type:           progress.TypeStatus,
		ProjectID:      projectID,
		Step:           string(step),
		Progress:       overall,
		Status:         string(status),
		Message:        message,
		ElapsedSeconds: elapsed,
		ETASeconds:     eta,
	})
}

// translateStageError maps low-level failures onto the error taxonomy when
// the engine layer has not already done so.
func translateStageError(step projects.Step, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrConcurrency),
		errors.Is(err, services.ErrEngineUnavailable),
		errors.Is(err, services.ErrTransient),
		errors.Is(err, services.ErrProcessing),
		errors.Is(err, services.ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, string(step), "run", "stage timed out", err)
	default:
		return services.Wrap(services.ErrProcessing, string(step), "run", "stage failed", err)
	}
}
