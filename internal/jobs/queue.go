package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, project_id, run_token, stop_after_melody, status, attempts, error_message, last_heartbeat, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		projectID    string
		runToken     string
		stopAfter    int
		statusStr    string
		attempts     int
		errorMessage sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &projectID, &runToken, &stopAfter, &statusStr, &attempts,
		&errorMessage, &heartbeatRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		ProjectID:       projectID,
		RunToken:        runToken,
		StopAfterMelody: stopAfter != 0,
		Status:          Status(statusStr),
		Attempts:        attempts,
		ErrorMessage:    errorMessage.String,
	}
	if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		job.UpdatedAt = t
	}
	if heartbeatRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &t
		}
	}
	return job, nil
}

// Enqueue adds a pipeline job for a project, carrying the run token minted
// when the pipeline lock was claimed. A project with a job already pending or
// processing is not queued twice; the existing job is returned with
// queued=false.
func (s *Store) Enqueue(ctx context.Context, projectID, runToken string, stopAfterMelody bool) (*Job, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	stop := 0
	if stopAfterMelody {
		stop = 1
	}

	var inserted bool
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`INSERT INTO pipeline_jobs (project_id, run_token, stop_after_melody, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT DO NOTHING`,
			projectID, runToken, stop, StatusPending, now, now)
		if execErr != nil {
			return execErr
		}
		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return execErr
		}
		inserted = affected > 0
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}

	job, err := s.ActiveForProject(ctx, projectID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, errors.New("enqueue job: no active job after insert")
	}
	return job, inserted, nil
}

// ActiveForProject returns the pending or processing job for a project.
func (s *Store) ActiveForProject(ctx context.Context, projectID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM pipeline_jobs
         WHERE project_id = ? AND status IN (?, ?) ORDER BY id LIMIT 1`,
		projectID, StatusPending, StatusProcessing)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job: %w", err)
	}
	return job, nil
}

// Claim atomically takes the oldest pending job for processing. Returns nil
// when the queue is empty.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := retryOnBusy(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM pipeline_jobs WHERE status = ? ORDER BY id LIMIT 1`,
			StatusPending)
		job, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			claimed = nil
			return tx.Commit()
		}
		if scanErr != nil {
			return scanErr
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, execErr := tx.ExecContext(ctx,
			`UPDATE pipeline_jobs
             SET status = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing, now, now, job.ID, StatusPending)
		if execErr != nil {
			return execErr
		}
		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return execErr
		}
		if affected == 0 {
			claimed = nil
			return tx.Commit()
		}

		job.Status = StatusProcessing
		job.Attempts++
		claimed = job
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

// Heartbeat refreshes the liveness timestamp of a processing job.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`UPDATE pipeline_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
			now, now, id, StatusProcessing)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("job heartbeat: %w", err)
	}
	return nil
}

// Complete marks a job finished.
func (s *Store) Complete(ctx context.Context, id int64) error {
	return s.finish(ctx, id, StatusCompleted, "")
}

// Fail marks a job failed with a message.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	return s.finish(ctx, id, StatusFailed, message)
}

func (s *Store) finish(ctx context.Context, id int64, status Status, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var msg any
	if message != "" {
		msg = message
	}
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`UPDATE pipeline_jobs SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
			status, msg, now, id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// ResetStuckProcessing returns every processing job to pending. Called once
// at startup to recover work interrupted by an unclean shutdown.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE pipeline_jobs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
			StatusPending, now, StatusProcessing)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return affected, nil
}

// ReclaimStale returns processing jobs whose heartbeat expired before the
// cutoff back to pending so another worker can pick them up.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE pipeline_jobs
             SET status = ?, last_heartbeat = NULL, updated_at = ?
             WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			StatusPending, now, StatusProcessing, cutoff.UTC().Format(time.RFC3339Nano))
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return affected, nil
}

// Counts summarizes the queue by status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM pipeline_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan job counts: %w", err)
		}
		counts[Status(statusStr)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}
