package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clovis/internal/services"
)

// NewProjectRequest carries the caller-supplied fields for Create.
type NewProjectRequest struct {
	Name            string
	Description     string
	Lyrics          string
	Language        string
	SynthesisEngine string
	VoiceModel      string
	MixPreset       string
}

// Create inserts a new project in the created state and returns the stored record.
func (s *Store) Create(ctx context.Context, req NewProjectRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "projects", "create", "project name is required", nil)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (
            id, name, description, status, progress, lyrics, language,
            synthesis_engine, voice_model, mix_preset, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		name,
		nullableString(strings.TrimSpace(req.Description)),
		StatusCreated,
		0,
		nullableString(req.Lyrics),
		nullableString(req.Language),
		nullableString(req.SynthesisEngine),
		nullableString(req.VoiceModel),
		nullableString(req.MixPreset),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a project by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// Update persists changes to an existing project record.
func (s *Store) Update(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	project.UpdatedAt = time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET
            name = ?, description = ?, status = ?, current_step = ?, progress = ?,
            error_message = ?, instrumental_filename = ?, audio_format = ?,
            duration_seconds = ?, sample_rate = ?, bpm = ?, musical_key = ?,
            lyrics = ?, language = ?, synthesis_engine = ?, voice_model = ?,
            mix_preset = ?, updated_at = ?
        WHERE id = ?`,
		project.Name,
		nullableString(project.Description),
		project.Status,
		nullableString(string(project.CurrentStep)),
		project.Progress,
		nullableString(project.ErrorMsg),
		nullableString(project.InstrumentalFilename),
		nullableString(project.AudioFormat),
		nullableFloat(project.DurationSeconds),
		nullableInt(project.SampleRate),
		nullableFloat(project.BPM),
		nullableString(project.MusicalKey),
		nullableString(project.Lyrics),
		nullableString(project.Language),
		nullableString(project.SynthesisEngine),
		nullableString(project.VoiceModel),
		nullableString(project.MixPreset),
		project.UpdatedAt.Format(time.RFC3339Nano),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project rows: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "projects", "update", "project not found", nil)
	}
	return nil
}

// List returns projects ordered newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// Delete removes a project record.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project rows: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "projects", "delete", "project not found", nil)
	}
	return nil
}

// Stats summarizes project counts by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM projects GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(statusStr)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
