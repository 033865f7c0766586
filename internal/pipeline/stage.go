package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"clovis/internal/artifacts"
	"clovis/internal/engines"
	"clovis/internal/fileutil"
	"clovis/internal/language"
	"clovis/internal/logging"
	"clovis/internal/melody"
	"clovis/internal/presets"
	"clovis/internal/progress"
	"clovis/internal/projects"
	"clovis/internal/services"
)

// runStage marks the stage as current, executes its engine under the stage
// timeout, and applies stage-specific post-processing.
func (r *Runner) runStage(ctx context.Context, project *projects.Project, layout artifacts.Layout, step projects.Step, tracker *progress.Tracker) error {
	logger := r.logger.With(
		logging.String(logging.FieldProjectID, project.ID),
		logging.String(logging.FieldStage, string(step)))
	ctx = services.WithStage(ctx, string(step))

	if err := r.store.EnterStage(ctx, project.ID, step); err != nil {
		return err
	}
	status := projects.ProcessingStatusFor(step)
	r.publishStatus(project.ID, status, step, 0, "stage started", tracker)
	logger.Info("stage started")

	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout := time.Duration(r.cfg.Workflow.StageTimeoutSeconds) * time.Second; timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	req := engines.Request{
		Project: project,
		Layout:  layout,
		Progress: func(percent int, message string) {
			_ = r.store.SetStageProgress(ctx, project.ID, percent)
			overall := tracker.Overall(string(step), percent)
			elapsed, eta := tracker.Estimate(overall, time.Now())
			r.publish(progress.Event{
				Type:           progress.TypeProgress,
				ProjectID:      project.ID,
				Step:           string(step),
				Progress:       overall,
				Message:        message,
				Status:         string(status),
				ElapsedSeconds: elapsed,
				ETASeconds:     eta,
			})
		},
	}

	var err error
	switch step {
	case projects.StepAnalysis:
		err = r.runAnalysis(stageCtx, project, req)
	case projects.StepMelody:
		err = r.runMelody(stageCtx, project, layout, req)
	case projects.StepSynthesis:
		err = r.runSynthesis(stageCtx, project, layout, req)
	case projects.StepRefinement:
		_, err = r.engines.Refinement.Run(stageCtx, req)
	case projects.StepMix:
		_, err = r.engines.Mix.Run(stageCtx, req)
	default:
		err = services.Wrap(services.ErrProcessing, string(step), "run", "unknown stage", nil)
	}
	if err != nil {
		return translateStageError(step, err)
	}

	logger.Info("stage complete")
	r.publishStatus(project.ID, status, step, 100, "stage complete", tracker)
	return nil
}

func (r *Runner) runAnalysis(ctx context.Context, project *projects.Project, req engines.Request) error {
	result, err := r.engines.Analysis.Run(ctx, req)
	if err != nil {
		return err
	}

	project.DurationSeconds = result.DurationSeconds
	project.SampleRate = result.SampleRate
	project.BPM = result.BPM
	project.MusicalKey = result.MusicalKey
	if err := r.store.Update(ctx, project); err != nil {
		return services.Wrap(services.ErrProcessing, "analysis", "persist", "save analysis metadata", err)
	}

	r.logger.Info("instrumental analyzed",
		logging.String(logging.FieldProjectID, project.ID),
		logging.String(logging.FieldEngine, result.Engine),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Float64("bpm", result.BPM),
		logging.String("musical_key", result.MusicalKey))
	return nil
}

// runMelody extracts the melody, then quantizes it and attaches syllables
// before exporting the MIDI companion file.
func (r *Runner) runMelody(ctx context.Context, project *projects.Project, layout artifacts.Layout, req engines.Request) error {
	if _, err := r.engines.Melody.Run(ctx, req); err != nil {
		return err
	}

	m, err := melody.Load(layout.MelodyJSON())
	if err != nil {
		return services.Wrap(services.ErrProcessing, "melody", "post", "load extracted melody", err)
	}
	if m.BPM <= 0 {
		m.BPM = project.BPM
	}
	m.Language = language.Normalize(project.Language)

	melody.SnapToGrid(m, melody.DefaultGridBeats)
	minDuration := melody.DefaultGridBeats * 60.0 / m.BPM
	melody.TrimOverlaps(m, minDuration)
	melody.AssignSyllables(m, project.Lyrics)
	if err := m.Validate(); err != nil {
		return err
	}

	if err := melody.Save(layout.MelodyJSON(), m); err != nil {
		return services.Wrap(services.ErrProcessing, "melody", "post", "save melody", err)
	}
	if err := melody.ExportSMF(layout.MelodyMIDI(), m); err != nil {
		return services.Wrap(services.ErrProcessing, "melody", "post", "export midi", err)
	}
	return nil
}

// vocalConfig is the settings snapshot written next to the raw vocals so a
// finished project records exactly how it was sung.
type vocalConfig struct {
	Engine     string `json:"engine"`
	VoiceModel string `json:"voice_model"`
	Language   string `json:"language"`
	MixPreset  string `json:"mix_preset"`
}

func (r *Runner) runSynthesis(ctx context.Context, project *projects.Project, layout artifacts.Layout, req engines.Request) error {
	m, err := melody.Load(layout.MelodyJSON())
	if err != nil {
		return services.Wrap(services.ErrValidation, "synthesis", "load", "melody missing, run the melody stage first", err)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	req.Melody = m

	adapter := r.engines.SynthesisFor(project.SynthesisEngine)
	result, err := adapter.Run(ctx, req)
	if err != nil {
		return err
	}

	snapshot := vocalConfig{
		Engine:     result.Engine,
		VoiceModel: project.VoiceModel,
		Language:   language.Normalize(project.Language),
		MixPreset:  project.MixPreset,
	}
	if snapshot.MixPreset == "" {
		snapshot.MixPreset = presets.DefaultMixPreset
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrProcessing, "synthesis", "snapshot", "marshal vocal config", err)
	}
	if err := fileutil.WriteFileAtomic(layout.VocalConfig(), data, 0o644); err != nil {
		return services.Wrap(services.ErrProcessing, "synthesis", "snapshot", "write vocal config", err)
	}
	return nil
}
