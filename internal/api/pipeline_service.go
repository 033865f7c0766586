package api

import (
	"context"
	"errors"
	"sort"
	"strings"

	"clovis/internal/jobs"
	"clovis/internal/projects"
	"clovis/internal/services"
)

// PipelineService owns the start handshake: claim the project lock, then
// enqueue a durable job for the worker pool.
type PipelineService struct {
	store *projects.Store
	queue *jobs.Store
}

// NewPipelineService constructs a PipelineService.
func NewPipelineService(store *projects.Store, queue *jobs.Store) *PipelineService {
	if store == nil || queue == nil {
		return nil
	}
	return &PipelineService{store: store, queue: queue}
}

// Start claims the pipeline lock for a project and enqueues its run. Callers
// get ErrConcurrency when the project is already processing, ErrValidation
// when no instrumental has been uploaded.
func (s *PipelineService) Start(ctx context.Context, id string, stopAfterMelody bool) (StartResponse, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return StartResponse{}, services.Wrap(services.ErrValidation, "api", "start", "project id is required", nil)
	}
	project, err := s.store.GetByID(ctx, trimmed)
	if err != nil {
		return StartResponse{}, err
	}
	if project == nil {
		return StartResponse{}, services.Wrap(services.ErrNotFound, "api", "start", "project not found", nil)
	}
	if !project.HasInstrumental() {
		return StartResponse{}, services.Wrap(services.ErrValidation, "api", "start", "no instrumental uploaded", nil)
	}

	claimed, err := s.store.BeginPipeline(ctx, trimmed)
	if err != nil {
		return StartResponse{}, err
	}
	if _, _, err := s.queue.Enqueue(ctx, trimmed, claimed.RunToken, stopAfterMelody); err != nil {
		// release the claim so the project is not stuck processing
		_ = s.store.FailPipeline(ctx, trimmed, projects.StepAnalysis, "failed to queue pipeline run")
		return StartResponse{}, services.Wrap(services.ErrProcessing, "api", "start", "failed to queue pipeline run", err)
	}
	return StartResponse{
		ProjectID: claimed.ID,
		Status:    string(claimed.Status),
		Queued:    true,
	}, nil
}

// BatchStart launches several projects, partitioning the outcome per project.
// Already-running projects land in Skipped, everything else that cannot start
// lands in Errors with a user-facing message.
func (s *PipelineService) BatchStart(ctx context.Context, req BatchStartRequest) (BatchStartResponse, error) {
	resp := BatchStartResponse{Errors: map[string]string{}}
	seen := make(map[string]struct{}, len(req.ProjectIDs))
	for _, id := range req.ProjectIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}

		_, err := s.Start(ctx, trimmed, req.StopAfterMelody)
		switch {
		case err == nil:
			resp.Started = append(resp.Started, trimmed)
		case errors.Is(err, services.ErrConcurrency):
			resp.Skipped = append(resp.Skipped, trimmed)
		default:
			resp.Errors[trimmed] = services.UserMessage(err)
		}
	}
	sort.Strings(resp.Started)
	sort.Strings(resp.Skipped)
	return resp, nil
}
