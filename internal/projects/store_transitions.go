package projects

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clovis/internal/services"
)

// BeginPipeline atomically claims the pipeline lock for a project by moving it
// into the analyzing state. The persisted status is the lock: the update only
// succeeds when the project is not already in a processing status, so two
// concurrent starts cannot both win.
func (s *Store) BeginPipeline(ctx context.Context, id string) (*Project, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects
         SET status = ?, current_step = ?, progress = 0, error_message = NULL, run_token = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?, ?)`,
		StatusAnalyzing,
		StepAnalysis,
		uuid.NewString(),
		now,
		id,
		StatusAnalyzing,
		StatusSynthesizing,
		StatusRefining,
		StatusMixing,
	)
	if err != nil {
		return nil, fmt.Errorf("begin pipeline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("begin pipeline rows: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, services.Wrap(services.ErrNotFound, "projects", "begin-pipeline", "project not found", nil)
		}
		return nil, services.Wrap(services.ErrConcurrency, "projects", "begin-pipeline",
			fmt.Sprintf("pipeline already running (status %s)", existing.Status), nil)
	}
	return s.GetByID(ctx, id)
}

// AdoptRun hands the pipeline lock of an already-processing project to the
// calling worker. The swap only succeeds while the stored token still matches
// the one the job carries, so when two workers are handed the same job
// exactly one wins; the loser must drop the job without touching the project.
func (s *Store) AdoptRun(ctx context.Context, id, token string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET run_token = ?, updated_at = ?
         WHERE id = ? AND run_token = ? AND run_token != '' AND status IN (?, ?, ?, ?)`,
		uuid.NewString(),
		now,
		id,
		token,
		StatusAnalyzing,
		StatusSynthesizing,
		StatusRefining,
		StatusMixing,
	)
	if err != nil {
		return fmt.Errorf("adopt run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adopt run rows: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConcurrency, "projects", "adopt-run",
			"pipeline run is owned by another worker", nil)
	}
	return nil
}

// EnterStage records that a stage started. The caller must already hold the
// pipeline lock via BeginPipeline.
func (s *Store) EnterStage(ctx context.Context, id string, step Step) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET status = ?, current_step = ?, progress = 0, updated_at = ? WHERE id = ?`,
		ProcessingStatusFor(step),
		step,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("enter stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("enter stage rows: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "projects", "enter-stage", "project not found", nil)
	}
	return nil
}

// SetStageProgress stores the in-stage completion percentage (0-100).
func (s *Store) SetStageProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE projects SET progress = ?, updated_at = ? WHERE id = ?`,
		progress,
		now,
		id,
	); err != nil {
		return fmt.Errorf("set stage progress: %w", err)
	}
	return nil
}

// MarkMelodyReady releases the pipeline lock at the melody checkpoint so the
// melody can be reviewed or edited before synthesis resumes.
func (s *Store) MarkMelodyReady(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE projects SET status = ?, current_step = NULL, progress = 100, updated_at = ? WHERE id = ?`,
		StatusMelodyReady,
		now,
		id,
	); err != nil {
		return fmt.Errorf("mark melody ready: %w", err)
	}
	return nil
}

// FailPipeline releases the lock into the error state, recording the failed
// stage and a user-facing message.
func (s *Store) FailPipeline(ctx context.Context, id string, step Step, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE projects SET status = ?, current_step = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusError,
		nullableString(string(step)),
		nullableString(message),
		now,
		id,
	); err != nil {
		return fmt.Errorf("fail pipeline: %w", err)
	}
	return nil
}

// CompletePipeline releases the lock into the completed state.
func (s *Store) CompletePipeline(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE projects SET status = ?, current_step = NULL, progress = 100, error_message = NULL, updated_at = ? WHERE id = ?`,
		StatusCompleted,
		now,
		id,
	); err != nil {
		return fmt.Errorf("complete pipeline: %w", err)
	}
	return nil
}

// ResetStuckProcessing releases pipeline locks left behind by an unclean
// shutdown. Projects found in a processing status at startup move to error so
// a restart can resume them at the failed stage.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects
         SET status = ?, error_message = 'interrupted by shutdown', updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusError,
		now,
		StatusAnalyzing,
		StatusSynthesizing,
		StatusRefining,
		StatusMixing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck projects: %w", err)
	}
	return res.RowsAffected()
}
