package engines

import (
	"context"
	"math"

	"clovis/internal/audio"
	"clovis/internal/presets"
	"clovis/internal/services"
)

const synthesisStage = "synthesis"

// CommandSynthesizer shells out to a singing-voice synthesis tool that turns
// a melody plus lyrics into a raw vocal take. Both supported engines share
// the same invocation shape, so one type covers diffsinger and acestep.
type CommandSynthesizer struct {
	EngineName string
	Binary     string
	ModelsDir  string
}

func (s *CommandSynthesizer) Name() string { return s.EngineName }

func (s *CommandSynthesizer) Available(ctx context.Context) error {
	return checkBinary(synthesisStage, s.EngineName, s.Binary)
}

func (s *CommandSynthesizer) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Melody == nil {
		return nil, services.Wrap(services.ErrValidation, synthesisStage, "synthesize",
			"no melody to synthesize", nil)
	}

	args := []string{
		"--melody", req.Layout.MelodyJSON(),
		"--output", req.Layout.RawVocals(),
	}
	if s.ModelsDir != "" {
		args = append(args, "--models", s.ModelsDir)
	}
	if req.Project != nil {
		if req.Project.VoiceModel != "" {
			args = append(args, "--voice", req.Project.VoiceModel)
		}
		if req.Project.Language != "" {
			args = append(args, "--language", req.Project.Language)
		}
	}

	req.Report(10, "synthesizing vocals")
	if _, err := runCommand(ctx, synthesisStage, s.Binary, args...); err != nil {
		return nil, err
	}
	req.Report(100, "vocals synthesized")
	return &Result{Engine: s.Name()}, nil
}

// BuiltinSynthesizer renders the melody as a harmonic voice directly, so
// synthesis always completes even with no model installed.
type BuiltinSynthesizer struct{}

func (s *BuiltinSynthesizer) Name() string { return "builtin-synthesis" }

func (s *BuiltinSynthesizer) Available(ctx context.Context) error { return nil }

func (s *BuiltinSynthesizer) Execute(ctx context.Context, req Request) (*Result, error) {
	m := req.Melody
	if m == nil || len(m.Notes) == 0 {
		return nil, services.Wrap(services.ErrValidation, synthesisStage, "render",
			"no melody to synthesize", nil)
	}

	transpose := 0
	if req.Project != nil {
		if voice, ok := presets.VoiceModelByName(req.Project.VoiceModel); ok {
			transpose = voice.Transpose
		}
	}

	// the vocal take must cover the whole instrumental so the mix keeps
	// the source duration even when the sung line ends early
	const rate = 44100
	seconds := m.Duration() + 0.25
	if req.Project != nil && req.Project.DurationSeconds > seconds {
		seconds = req.Project.DurationSeconds
	}
	buf := audio.NewBuffer(rate, 1, int(math.Ceil(seconds*rate)))

	total := len(m.Notes)
	for i, note := range m.Notes {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTimeout, synthesisStage, "render", "synthesis cancelled", err)
		}
		velocity := note.Velocity
		if velocity <= 0 {
			velocity = 0.8
		}
		pitch := note.Pitch + transpose
		audio.RenderVoicedNote(buf,
			int(note.Start*rate),
			int(note.Duration*rate),
			audio.MIDIToFrequency(pitch),
			velocity)
		if total > 0 && i%8 == 0 {
			req.Report(10+80*i/total, "rendering notes")
		}
	}

	audio.Normalize(buf, 0.8)
	if err := audio.WriteWAVFile(req.Layout.RawVocals(), buf); err != nil {
		return nil, services.Wrap(services.ErrProcessing, synthesisStage, "render", "write raw vocals", err)
	}
	req.Report(100, "vocals rendered")
	return &Result{Engine: s.Name()}, nil
}
