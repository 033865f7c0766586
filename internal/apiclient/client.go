// Package apiclient is the thin HTTP client the CLI uses to talk to a
// running clovis daemon.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"clovis/internal/api"
	"clovis/internal/config"
	"clovis/internal/melody"
	"clovis/internal/progress"
	"clovis/internal/services"
)

// ErrDaemonUnavailable reports that the daemon could not be reached.
var ErrDaemonUnavailable = errors.New("clovis daemon is not reachable")

// Client talks to the daemon's HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New builds a client from the configured API bind address.
func New(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration required")
	}
	return NewForAddress(cfg.Paths.APIBind)
}

// NewForAddress builds a client for an explicit host:port or URL.
func NewForAddress(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches daemon runtime diagnostics.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.getJSON(ctx, "/api/status", nil, &out)
	return out, err
}

// Presets fetches the mix preset and voice model catalogs.
func (c *Client) Presets(ctx context.Context) (api.PresetsResponse, error) {
	var out api.PresetsResponse
	err := c.getJSON(ctx, "/api/presets", nil, &out)
	return out, err
}

// Projects lists projects, optionally filtered by status.
func (c *Client) Projects(ctx context.Context, statuses ...string) ([]api.Project, error) {
	values := url.Values{}
	for _, status := range statuses {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			values.Add("status", trimmed)
		}
	}
	var out api.ProjectListResponse
	if err := c.getJSON(ctx, "/api/projects", values, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// Project fetches a single project.
func (c *Client) Project(ctx context.Context, id string) (api.Project, error) {
	var out api.ProjectResponse
	err := c.getJSON(ctx, "/api/projects/"+url.PathEscape(id), nil, &out)
	return out.Project, err
}

// PipelineStatus fetches project state plus the derived step map.
func (c *Client) PipelineStatus(ctx context.Context, id string) (api.PipelineStatus, error) {
	var out api.PipelineStatus
	err := c.getJSON(ctx, "/api/pipeline/"+url.PathEscape(id)+"/status", nil, &out)
	return out, err
}

// CreateProject creates a project, attaching the instrumental file when
// instrumentalPath is non-empty.
func (c *Client) CreateProject(ctx context.Context, req api.CreateProjectRequest, instrumentalPath string) (api.Project, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"name":             req.Name,
		"description":      req.Description,
		"lyrics":           req.Lyrics,
		"language":         req.Language,
		"synthesis_engine": req.SynthesisEngine,
		"voice_model":      req.VoiceModel,
		"mix_preset":       req.MixPreset,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return api.Project{}, err
		}
	}
	if instrumentalPath != "" {
		file, err := os.Open(instrumentalPath)
		if err != nil {
			return api.Project{}, fmt.Errorf("open instrumental: %w", err)
		}
		defer file.Close()
		part, err := form.CreateFormFile("instrumental", filepath.Base(instrumentalPath))
		if err != nil {
			return api.Project{}, err
		}
		if _, err := io.Copy(part, file); err != nil {
			return api.Project{}, fmt.Errorf("read instrumental: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return api.Project{}, err
	}

	var out api.ProjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects", form.FormDataContentType(), &body, &out); err != nil {
		return api.Project{}, err
	}
	return out.Project, nil
}

// UploadInstrumental replaces a project's instrumental.
func (c *Client) UploadInstrumental(ctx context.Context, id, path string) (api.Project, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.Project{}, fmt.Errorf("open instrumental: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("instrumental", filepath.Base(path))
	if err != nil {
		return api.Project{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return api.Project{}, fmt.Errorf("read instrumental: %w", err)
	}
	if err := form.Close(); err != nil {
		return api.Project{}, err
	}

	var out api.ProjectResponse
	endpoint := "/api/projects/" + url.PathEscape(id) + "/upload"
	if err := c.do(ctx, http.MethodPost, endpoint, form.FormDataContentType(), &body, &out); err != nil {
		return api.Project{}, err
	}
	return out.Project, nil
}

// Melody fetches the extracted melody for review at the melody_ready
// checkpoint.
func (c *Client) Melody(ctx context.Context, id string) (*melody.Melody, error) {
	var out api.MelodyResponse
	if err := c.getJSON(ctx, "/api/projects/"+url.PathEscape(id)+"/melody", nil, &out); err != nil {
		return nil, err
	}
	return out.Melody, nil
}

// UpdateMelody replaces the stored melody with an edited one.
func (c *Client) UpdateMelody(ctx context.Context, id string, m *melody.Melody) (*melody.Melody, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out api.MelodyResponse
	endpoint := "/api/projects/" + url.PathEscape(id) + "/melody"
	if err := c.do(ctx, http.MethodPut, endpoint, "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return out.Melody, nil
}

// Start launches a pipeline run.
func (c *Client) Start(ctx context.Context, id string, stopAfterMelody bool) (api.StartResponse, error) {
	endpoint := "/api/pipeline/" + url.PathEscape(id) + "/start"
	if stopAfterMelody {
		endpoint += "?stop_after_melody=1"
	}
	var out api.StartResponse
	err := c.do(ctx, http.MethodPost, endpoint, "application/json", nil, &out)
	return out, err
}

// BatchStart launches several projects at once.
func (c *Client) BatchStart(ctx context.Context, req api.BatchStartRequest) (api.BatchStartResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return api.BatchStartResponse{}, err
	}
	var out api.BatchStartResponse
	err = c.do(ctx, http.MethodPost, "/api/batch/start", "application/json", bytes.NewReader(payload), &out)
	return out, err
}

// Export converts the final mix into the requested format on the daemon host
// and returns the resulting file path.
func (c *Client) Export(ctx context.Context, id, format string) (string, error) {
	endpoint := "/api/projects/" + url.PathEscape(id) + "/export?format=" + url.QueryEscape(format)
	var out struct {
		Path string `json:"path"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, "application/json", nil, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

// DeleteProject removes a project and its files.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), "", nil, nil)
}

// WatchProgress streams progress events for a project until the context ends,
// the pipeline reaches a terminal status, or the socket closes. Every event
// is handed to fn in order.
func (c *Client) WatchProgress(ctx context.Context, id string, fn func(progress.Event)) error {
	wsURL := *c.base
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws/progress/" + url.PathEscape(id)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeHTTPError(resp)
		}
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var evt progress.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(evt)
		if evt.Type == progress.TypeStatus && isTerminalStatus(evt.Status) {
			return nil
		}
		if evt.Type == progress.TypeError {
			return nil
		}
	}
}

func isTerminalStatus(status string) bool {
	return status == "completed" || status == "error" || status == "melody_ready"
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	endpoint := path
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, "", nil, out)
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeHTTPError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeHTTPError restores the error taxonomy from the response status so
// callers can branch on the same sentinels the daemon uses.
func decodeHTTPError(resp *http.Response) error {
	message := fmt.Sprintf("daemon returned status %d", resp.StatusCode)
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		message = payload.Error
	}

	var marker error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		marker = services.ErrValidation
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusConflict:
		marker = services.ErrConcurrency
	case http.StatusServiceUnavailable:
		marker = services.ErrEngineUnavailable
	case http.StatusGatewayTimeout:
		marker = services.ErrTimeout
	default:
		marker = services.ErrProcessing
	}
	return services.Wrap(marker, "apiclient", "request", message, nil)
}
