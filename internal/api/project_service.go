package api

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"clovis/internal/artifacts"
	"clovis/internal/config"
	"clovis/internal/exports"
	"clovis/internal/fileutil"
	"clovis/internal/language"
	"clovis/internal/melody"
	"clovis/internal/projects"
	"clovis/internal/services"
)

// CreateProjectRequest carries the fields accepted when creating a project.
type CreateProjectRequest struct {
	Name            string
	Description     string
	Lyrics          string
	Language        string
	SynthesisEngine string
	VoiceModel      string
	MixPreset       string
}

// ProjectService exposes project CRUD plus upload handling.
type ProjectService struct {
	cfg   *config.Config
	store *projects.Store
}

// NewProjectService constructs a ProjectService.
func NewProjectService(cfg *config.Config, store *projects.Store) *ProjectService {
	if cfg == nil || store == nil {
		return nil
	}
	return &ProjectService{cfg: cfg, store: store}
}

// Create persists a new project and prepares its artifact directory.
func (s *ProjectService) Create(ctx context.Context, req CreateProjectRequest) (Project, error) {
	lang := strings.TrimSpace(req.Language)
	if lang != "" {
		lang = language.Normalize(lang)
	}
	project, err := s.store.Create(ctx, projects.NewProjectRequest{
		Name:            req.Name,
		Description:     req.Description,
		Lyrics:          req.Lyrics,
		Language:        lang,
		SynthesisEngine: req.SynthesisEngine,
		VoiceModel:      req.VoiceModel,
		MixPreset:       req.MixPreset,
	})
	if err != nil {
		return Project{}, err
	}
	if err := artifacts.NewLayout(s.cfg, project.ID).Ensure(); err != nil {
		return Project{}, services.Wrap(services.ErrProcessing, "api", "create-project", "failed to create project directory", err)
	}
	return FromProject(project), nil
}

// List returns projects filtered by optional status strings. Unknown status
// values are rejected.
func (s *ProjectService) List(ctx context.Context, statuses ...string) ([]Project, error) {
	var filters []projects.Status
	for _, value := range statuses {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := projects.ParseStatus(trimmed)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "api", "list-projects",
				fmt.Sprintf("unknown status %q", trimmed), nil)
		}
		filters = append(filters, status)
	}
	items, err := s.store.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return FromProjects(items), nil
}

// Describe fetches one project. Missing projects return ErrNotFound.
func (s *ProjectService) Describe(ctx context.Context, id string) (Project, error) {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return Project{}, err
	}
	return FromProject(project), nil
}

// PipelineStatus returns project state plus the derived per-step map.
func (s *ProjectService) PipelineStatus(ctx context.Context, id string) (PipelineStatus, error) {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return PipelineStatus{}, err
	}
	layout := artifacts.NewLayout(s.cfg, project.ID)
	steps := projects.StepStatuses(project, layout.Presence())
	return PipelineStatus{
		Project: FromProject(project),
		Steps:   FromStepStatuses(steps),
	}, nil
}

// Delete removes a project record and its artifact directory.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if project.IsProcessing() {
		return services.Wrap(services.ErrConcurrency, "api", "delete-project", "project is processing", nil)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(artifacts.NewLayout(s.cfg, id).Root()); err != nil {
		return services.Wrap(services.ErrProcessing, "api", "delete-project", "failed to remove project files", err)
	}
	return nil
}

// SaveInstrumental validates and stores an uploaded instrumental, recording
// the filename and format on the project. Re-uploading replaces the previous
// file and clears downstream artifacts.
func (s *ProjectService) SaveInstrumental(ctx context.Context, id, filename string, src io.Reader) (Project, error) {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if project.IsProcessing() {
		return Project{}, services.Wrap(services.ErrConcurrency, "api", "upload", "project is processing", nil)
	}
	format, err := s.validateFormat(filename)
	if err != nil {
		return Project{}, err
	}

	layout := artifacts.NewLayout(s.cfg, project.ID)
	if err := layout.Ensure(); err != nil {
		return Project{}, services.Wrap(services.ErrProcessing, "api", "upload", "failed to create project directory", err)
	}
	if previous, ok := layout.FindInstrumental(); ok {
		if err := os.Remove(previous); err != nil && !os.IsNotExist(err) {
			return Project{}, services.Wrap(services.ErrProcessing, "api", "upload", "failed to replace instrumental", err)
		}
	}
	if err := layout.ClearFrom(projects.StepAnalysis); err != nil {
		return Project{}, services.Wrap(services.ErrProcessing, "api", "upload", "failed to clear stale artifacts", err)
	}

	target := layout.Instrumental(format)
	written, err := s.copyBounded(target, src)
	if err != nil {
		return Project{}, err
	}
	if written == 0 {
		_ = os.Remove(target)
		return Project{}, services.Wrap(services.ErrValidation, "api", "upload", "instrumental file is empty", nil)
	}

	project.InstrumentalFilename = filepath.Base(filename)
	project.AudioFormat = format
	project.DurationSeconds = 0
	project.SampleRate = 0
	project.BPM = 0
	project.MusicalKey = ""
	if err := s.store.Update(ctx, project); err != nil {
		return Project{}, err
	}
	return FromProject(project), nil
}

// Melody returns the extracted melody so it can be reviewed at the
// melody_ready checkpoint.
func (s *ProjectService) Melody(ctx context.Context, id string) (*melody.Melody, error) {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	path := artifacts.NewLayout(s.cfg, project.ID).MelodyJSON()
	if !fileutil.FileExists(path) {
		return nil, services.Wrap(services.ErrNotFound, "api", "melody", "no melody extracted yet", nil)
	}
	m, err := melody.Load(path)
	if err != nil {
		return nil, services.Wrap(services.ErrProcessing, "api", "melody", "failed to read melody", err)
	}
	return m, nil
}

// UpdateMelody replaces the stored melody with an edited one. The MIDI
// companion is re-exported and stale downstream takes are cleared so the next
// run sings the edited line.
func (s *ProjectService) UpdateMelody(ctx context.Context, id string, m *melody.Melody) (*melody.Melody, error) {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.IsProcessing() {
		return nil, services.Wrap(services.ErrConcurrency, "api", "melody", "project is processing", nil)
	}
	if m == nil {
		return nil, services.Wrap(services.ErrValidation, "api", "melody", "melody is required", nil)
	}
	if m.BPM <= 0 {
		m.BPM = project.BPM
	}
	m.Sort()
	if err := m.Validate(); err != nil {
		return nil, err
	}

	layout := artifacts.NewLayout(s.cfg, project.ID)
	if !fileutil.FileExists(layout.MelodyJSON()) {
		return nil, services.Wrap(services.ErrNotFound, "api", "melody", "no melody extracted yet", nil)
	}
	if err := melody.Save(layout.MelodyJSON(), m); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "api", "melody", "failed to save melody", err)
	}
	if err := melody.ExportSMF(layout.MelodyMIDI(), m); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "api", "melody", "failed to export midi", err)
	}
	if err := layout.ClearFrom(projects.StepSynthesis); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "api", "melody", "failed to clear stale artifacts", err)
	}
	return m, nil
}

// Export converts the final mix into the requested format and returns the
// export path.
func (s *ProjectService) Export(ctx context.Context, id, format string) (string, error) {
	project, err := s.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	layout := artifacts.NewLayout(s.cfg, project.ID)
	return exports.Convert(ctx, s.cfg, layout, format)
}

func (s *ProjectService) fetch(ctx context.Context, id string) (*projects.Project, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "projects", "project id is required", nil)
	}
	project, err := s.store.GetByID(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "projects", "project not found", nil)
	}
	return project, nil
}

func (s *ProjectService) validateFormat(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "", services.Wrap(services.ErrValidation, "api", "upload", "filename has no extension", nil)
	}
	for _, allowed := range s.cfg.Upload.AllowedFormats {
		if strings.EqualFold(allowed, ext) {
			return ext, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "api", "upload",
		fmt.Sprintf("format %q not allowed (allowed: %s)", ext, strings.Join(s.cfg.Upload.AllowedFormats, ", ")), nil)
}

// copyBounded writes src to target, enforcing the configured size limit.
func (s *ProjectService) copyBounded(target string, src io.Reader) (int64, error) {
	limit := int64(s.cfg.Upload.MaxSizeMB) * 1024 * 1024
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, services.Wrap(services.ErrProcessing, "api", "upload", "failed to write instrumental", err)
	}
	written, copyErr := io.Copy(out, io.LimitReader(src, limit+1))
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(target)
		return 0, services.Wrap(services.ErrProcessing, "api", "upload", "failed to write instrumental", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(target)
		return 0, services.Wrap(services.ErrProcessing, "api", "upload", "failed to write instrumental", closeErr)
	}
	if written > limit {
		_ = os.Remove(target)
		return 0, services.Wrap(services.ErrValidation, "api", "upload",
			fmt.Sprintf("instrumental exceeds the %d MB limit", s.cfg.Upload.MaxSizeMB), nil)
	}
	return written, nil
}
