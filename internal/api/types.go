package api

import "clovis/internal/melody"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Project describes a project record in a transport-friendly format.
type Project struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Status          string  `json:"status"`
	CurrentStep     string  `json:"currentStep,omitempty"`
	Progress        int     `json:"progress"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	Instrumental    string  `json:"instrumentalFilename,omitempty"`
	AudioFormat     string  `json:"audioFormat,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	SampleRate      int     `json:"sampleRate,omitempty"`
	BPM             float64 `json:"bpm,omitempty"`
	MusicalKey      string  `json:"musicalKey,omitempty"`
	HasLyrics       bool    `json:"hasLyrics"`
	Language        string  `json:"language,omitempty"`
	SynthesisEngine string  `json:"synthesisEngine,omitempty"`
	VoiceModel      string  `json:"voiceModel,omitempty"`
	MixPreset       string  `json:"mixPreset,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// StepStatus reports availability and completion for one pipeline step.
type StepStatus struct {
	Available bool `json:"available"`
	Completed bool `json:"completed"`
}

// PipelineStatus combines project state with the derived per-step map.
type PipelineStatus struct {
	Project Project               `json:"project"`
	Steps   map[string]StepStatus `json:"steps"`
}

// ProjectListResponse wraps a collection of projects for API responses.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Project Project `json:"project"`
}

// MelodyResponse wraps the reviewable melody.
type MelodyResponse struct {
	Melody *melody.Melody `json:"melody"`
}

// StartResponse reports the outcome of a pipeline start request.
type StartResponse struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	Queued    bool   `json:"queued"`
}

// BatchStartRequest names the projects a batch start should launch.
type BatchStartRequest struct {
	ProjectIDs      []string `json:"projectIds"`
	StopAfterMelody bool     `json:"stopAfterMelody,omitempty"`
}

// BatchStartResponse partitions a batch start into started, skipped, and
// failed projects. Skipped projects were already running.
type BatchStartResponse struct {
	Started []string          `json:"started"`
	Skipped []string          `json:"skipped"`
	Errors  map[string]string `json:"errors"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	ProjectsDB    string         `json:"projectsDbPath"`
	JobsDB        string         `json:"jobsDbPath"`
	LockFilePath  string         `json:"lockFilePath"`
	Workers       int            `json:"workers"`
	ProjectCounts map[string]int `json:"projectCounts"`
	JobCounts     map[string]int `json:"jobCounts"`
	Engines       []EngineStatus `json:"engines"`
}

// EngineStatus captures availability of one primary engine binary.
type EngineStatus struct {
	Stage     string `json:"stage"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// MixPreset describes a named mix preset for catalog listings.
type MixPreset struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// VoiceModel describes a voice model available to a synthesis engine.
type VoiceModel struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

// PresetsResponse lists the preset catalogs.
type PresetsResponse struct {
	MixPresets  []MixPreset  `json:"mixPresets"`
	VoiceModels []VoiceModel `json:"voiceModels"`
}
