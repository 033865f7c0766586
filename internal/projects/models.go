package projects

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a project's pipeline.
type Status string

const (
	StatusCreated      Status = "created"
	StatusAnalyzing    Status = "analyzing"
	StatusMelodyReady  Status = "melody_ready"
	StatusSynthesizing Status = "synthesizing"
	StatusRefining     Status = "refining"
	StatusMixing       Status = "mixing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

var allStatuses = []Status{
	StatusCreated,
	StatusAnalyzing,
	StatusMelodyReady,
	StatusSynthesizing,
	StatusRefining,
	StatusMixing,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processingStatuses are the statuses that hold the pipeline lock.
var processingStatuses = map[Status]struct{}{
	StatusAnalyzing:    {},
	StatusSynthesizing: {},
	StatusRefining:     {},
	StatusMixing:       {},
}

// Step identifies one stage of the fixed pipeline.
type Step string

const (
	StepUpload     Step = "upload"
	StepAnalysis   Step = "analysis"
	StepMelody     Step = "melody"
	StepSynthesis  Step = "synthesis"
	StepRefinement Step = "refinement"
	StepMix        Step = "mix"
)

// PipelineOrder is the fixed execution order of the processing stages.
// Upload is implicit: it happens before the pipeline ever starts.
var PipelineOrder = []Step{
	StepAnalysis,
	StepMelody,
	StepSynthesis,
	StepRefinement,
	StepMix,
}

// StepStatus reports whether one stage can run and whether it already
// produced valid artifacts. Derived on read, never persisted.
type StepStatus struct {
	Available bool `json:"available"`
	Completed bool `json:"completed"`
}

// Project is the durable record the orchestrator reads and writes.
type Project struct {
	ID          string
	Name        string
	Description string
	Status      Status
	CurrentStep Step   // empty unless Status is a processing status
	Progress    int    // 0-100 within the active stage
	ErrorMsg    string
	RunToken    string // identifies the run holding the pipeline lock

	InstrumentalFilename string
	AudioFormat          string
	DurationSeconds      float64
	SampleRate           int
	BPM                  float64
	MusicalKey           string

	Lyrics   string
	Language string

	SynthesisEngine string
	VoiceModel      string
	MixPreset       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing reports whether the project currently holds the pipeline lock.
func (p *Project) IsProcessing() bool {
	return IsProcessingStatus(p.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight pipeline.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// ProcessingStatusFor maps a stage to the status persisted while it runs.
func ProcessingStatusFor(step Step) Status {
	switch step {
	case StepAnalysis, StepMelody:
		return StatusAnalyzing
	case StepSynthesis:
		return StatusSynthesizing
	case StepRefinement:
		return StatusRefining
	case StepMix:
		return StatusMixing
	default:
		return StatusAnalyzing
	}
}

// HasInstrumental reports whether an instrumental track has been uploaded.
func (p *Project) HasInstrumental() bool {
	return strings.TrimSpace(p.InstrumentalFilename) != "" && strings.TrimSpace(p.AudioFormat) != ""
}
