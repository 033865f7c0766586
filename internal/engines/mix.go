package engines

import (
	"context"
	"strings"

	"clovis/internal/audio"
	"clovis/internal/fileutil"
	"clovis/internal/presets"
	"clovis/internal/services"
)

const mixStage = "mix"

// PedalboardMixer shells out to the external mixing tool, passing the chosen
// preset name through.
type PedalboardMixer struct {
	Binary string
}

func (m *PedalboardMixer) Name() string { return "pedalboard" }

func (m *PedalboardMixer) Available(ctx context.Context) error {
	return checkBinary(mixStage, "pedalboard", m.Binary)
}

func (m *PedalboardMixer) Execute(ctx context.Context, req Request) (*Result, error) {
	instrumental, ok := req.Layout.FindInstrumental()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, mixStage, "mix",
			"no instrumental uploaded", nil)
	}
	if !fileutil.FileExists(req.Layout.RefinedVocals()) {
		return nil, services.Wrap(services.ErrValidation, mixStage, "mix",
			"no refined vocals to mix", nil)
	}

	preset := presets.DefaultMixPreset
	if req.Project != nil && req.Project.MixPreset != "" {
		preset = req.Project.MixPreset
	}

	req.Report(10, "mixing final track")
	_, err := runCommand(ctx, mixStage, m.Binary,
		"--instrumental", instrumental,
		"--vocals", req.Layout.RefinedVocals(),
		"--preset", preset,
		"--output", req.Layout.FinalMix())
	if err != nil {
		return nil, err
	}
	req.Report(100, "mix complete")
	return &Result{Engine: m.Name()}, nil
}

// BuiltinMixer applies the preset chain with the internal DSP primitives.
// WAV instrumentals are blended in; compressed instrumentals (which the
// builtin decoder cannot read) yield a vocal-only mix padded to the analyzed
// duration rather than a failure.
type BuiltinMixer struct{}

func (m *BuiltinMixer) Name() string { return "builtin-mix" }

func (m *BuiltinMixer) Available(ctx context.Context) error { return nil }

func (m *BuiltinMixer) Execute(ctx context.Context, req Request) (*Result, error) {
	req.Report(10, "loading stems")
	vocals, err := audio.ReadWAVFile(req.Layout.RefinedVocals())
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, mixStage, "mix",
			"refined vocals missing or unreadable", err)
	}

	presetName := ""
	if req.Project != nil {
		presetName = req.Project.MixPreset
	}
	preset, ok := presets.MixPresetByName(presetName)
	if !ok {
		preset, _ = presets.MixPresetByName(presets.DefaultMixPreset)
	}

	out := vocals.ToStereo().Clone()
	audio.ApplyGain(out, audio.DBToGain(preset.VocalGainDB))

	// the instrumental's length governs the mix: short vocal takes are
	// padded out and overlong ones trimmed. When the instrumental cannot
	// be decoded the analyzed duration stands in for it.
	targetFrames := 0
	if path, found := req.Layout.FindInstrumental(); found && strings.HasSuffix(strings.ToLower(path), ".wav") {
		if instrumental, err := audio.ReadWAVFile(path); err == nil {
			req.Report(40, "blending instrumental")
			stem := instrumental.Resample(out.SampleRate).ToStereo()
			targetFrames = stem.Frames()
			out.PadTo(targetFrames)
			audio.MixInto(out, stem, audio.DBToGain(preset.InstrumentalGainDB))
		}
	}
	if targetFrames == 0 && req.Project != nil && req.Project.DurationSeconds > 0 {
		targetFrames = int(req.Project.DurationSeconds * float64(out.SampleRate))
		out.PadTo(targetFrames)
	}
	if targetFrames > 0 {
		out.TrimTo(targetFrames)
	}

	req.Report(60, "applying mix chain")
	audio.HighPass(out, preset.HighPassHz)
	audio.LowPass(out, preset.LowPassHz)
	audio.Compress(out, preset.CompressThreshold, preset.CompressRatio)
	audio.Reverb(out, preset.ReverbWet, preset.ReverbDecay, preset.ReverbDelay)
	audio.Limit(out, preset.LimiterCeiling)

	req.Report(90, "writing final mix")
	if err := audio.WriteWAVFile(req.Layout.FinalMix(), out); err != nil {
		return nil, services.Wrap(services.ErrProcessing, mixStage, "mix", "write final mix", err)
	}
	req.Report(100, "mix complete")
	return &Result{Engine: m.Name()}, nil
}
