package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"clovis/internal/api"
	"clovis/internal/config"
	"clovis/internal/logging"
	"clovis/internal/melody"
	"clovis/internal/services"
)

type apiServer struct {
	bind        string
	logger      *slog.Logger
	daemon      *Daemon
	projectSvc  *api.ProjectService
	pipelineSvc *api.PipelineService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api_bind is required")
	}

	srv := &apiServer{
		bind:        bind,
		logger:      logger,
		daemon:      d,
		projectSvc:  api.NewProjectService(cfg, d.store),
		pipelineSvc: api.NewPipelineService(d.store, d.queue),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/presets", srv.handlePresets)
	mux.HandleFunc("/api/projects", srv.handleProjects)
	mux.HandleFunc("/api/projects/", srv.handleProject)
	mux.HandleFunc("/api/pipeline/", srv.handlePipeline)
	mux.HandleFunc("/api/batch/start", srv.handleBatchStart)
	mux.HandleFunc("/ws/progress/", srv.handleProgressSocket)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.PresetCatalog())
}

func (s *apiServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.projectSvc.List(r.Context(), r.URL.Query()["status"]...)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: projects})
	case http.MethodPost:
		s.createProject(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// createProject accepts multipart form data so the instrumental can ride
// along with the metadata in a single request.
func (s *apiServer) createProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	req := api.CreateProjectRequest{
		Name:            r.FormValue("name"),
		Description:     r.FormValue("description"),
		Lyrics:          r.FormValue("lyrics"),
		Language:        r.FormValue("language"),
		SynthesisEngine: r.FormValue("synthesis_engine"),
		VoiceModel:      r.FormValue("voice_model"),
		MixPreset:       r.FormValue("mix_preset"),
	}

	project, err := s.projectSvc.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if file, header, fileErr := r.FormFile("instrumental"); fileErr == nil {
		defer file.Close()
		project, err = s.projectSvc.SaveInstrumental(r.Context(), project.ID, header.Filename, file)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, api.ProjectResponse{Project: project})
}

func (s *apiServer) handleProject(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		project, err := s.projectSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.ProjectResponse{Project: project})
	case action == "" && r.Method == http.MethodDelete:
		if err := s.projectSvc.Delete(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
	case action == "upload" && r.Method == http.MethodPost:
		s.uploadInstrumental(w, r, id)
	case action == "melody" && r.Method == http.MethodGet:
		m, err := s.projectSvc.Melody(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.MelodyResponse{Melody: m})
	case action == "melody" && r.Method == http.MethodPut:
		var m melody.Melody
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid melody body")
			return
		}
		updated, err := s.projectSvc.UpdateMelody(r.Context(), id, &m)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.MelodyResponse{Melody: updated})
	case action == "export" && r.Method == http.MethodPost:
		format := r.URL.Query().Get("format")
		path, err := s.projectSvc.Export(r.Context(), id, format)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"path": path})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) uploadInstrumental(w http.ResponseWriter, r *http.Request, id string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	file, header, err := r.FormFile("instrumental")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing instrumental file field")
		return
	}
	defer file.Close()

	project, svcErr := s.projectSvc.SaveInstrumental(r.Context(), id, header.Filename, file)
	if svcErr != nil {
		s.writeServiceError(w, svcErr)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProjectResponse{Project: project})
}

func (s *apiServer) handlePipeline(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/pipeline/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}

	switch {
	case action == "start" && r.Method == http.MethodPost:
		stopAfterMelody := parseBoolParam(r, "stop_after_melody")
		resp, err := s.pipelineSvc.Start(r.Context(), id, stopAfterMelody)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, resp)
	case action == "status" && r.Method == http.MethodGet:
		status, err := s.projectSvc.PipelineStatus(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, status)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.BatchStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.pipelineSvc.BatchStart(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func parseBoolParam(r *http.Request, name string) bool {
	value := r.URL.Query().Get(name)
	if value == "" {
		value = r.PostFormValue(name)
	}
	return value == "1" || strings.EqualFold(value, "true")
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConcurrency):
		status = http.StatusConflict
	case errors.Is(err, services.ErrEngineUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	s.writeError(w, status, services.UserMessage(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
