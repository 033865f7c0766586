package api

import (
	"strings"

	"clovis/internal/presets"
	"clovis/internal/projects"
)

// FromProject converts a stored project into its API representation.
func FromProject(p *projects.Project) Project {
	if p == nil {
		return Project{}
	}
	out := Project{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Status:          string(p.Status),
		CurrentStep:     string(p.CurrentStep),
		Progress:        p.Progress,
		ErrorMessage:    p.ErrorMsg,
		Instrumental:    p.InstrumentalFilename,
		AudioFormat:     p.AudioFormat,
		DurationSeconds: p.DurationSeconds,
		SampleRate:      p.SampleRate,
		BPM:             p.BPM,
		MusicalKey:      p.MusicalKey,
		HasLyrics:       strings.TrimSpace(p.Lyrics) != "",
		Language:        p.Language,
		SynthesisEngine: p.SynthesisEngine,
		VoiceModel:      p.VoiceModel,
		MixPreset:       p.MixPreset,
	}
	if !p.CreatedAt.IsZero() {
		out.CreatedAt = p.CreatedAt.Format(dateTimeFormat)
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = p.UpdatedAt.Format(dateTimeFormat)
	}
	return out
}

// FromProjects converts a project slice, preserving order.
func FromProjects(items []*projects.Project) []Project {
	if len(items) == 0 {
		return nil
	}
	out := make([]Project, 0, len(items))
	for _, item := range items {
		out = append(out, FromProject(item))
	}
	return out
}

// FromStepStatuses converts the derived step map into string-keyed DTOs.
func FromStepStatuses(steps map[projects.Step]projects.StepStatus) map[string]StepStatus {
	out := make(map[string]StepStatus, len(steps))
	for step, status := range steps {
		out[string(step)] = StepStatus{Available: status.Available, Completed: status.Completed}
	}
	return out
}

// MergeProjectStats normalizes status counts so every known status appears.
func MergeProjectStats(stats map[projects.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range projects.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// PresetCatalog builds the static preset listing.
func PresetCatalog() PresetsResponse {
	var resp PresetsResponse
	for _, preset := range presets.MixPresets() {
		resp.MixPresets = append(resp.MixPresets, MixPreset{
			Name:        preset.Name,
			Description: preset.Description,
		})
	}
	for _, model := range presets.VoiceModels("") {
		resp.VoiceModels = append(resp.VoiceModels, VoiceModel{
			Name:   model.Name,
			Engine: model.Engine,
		})
	}
	return resp
}
