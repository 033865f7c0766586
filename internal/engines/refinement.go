package engines

import (
	"context"

	"clovis/internal/audio"
	"clovis/internal/fileutil"
	"clovis/internal/services"
)

const refinementStage = "refinement"

// RVCRefiner shells out to a voice conversion tool that re-times and
// re-textures the raw synthesis take with the target voice model.
type RVCRefiner struct {
	Binary    string
	ModelsDir string
}

func (r *RVCRefiner) Name() string { return "rvc" }

func (r *RVCRefiner) Available(ctx context.Context) error {
	return checkBinary(refinementStage, "rvc", r.Binary)
}

func (r *RVCRefiner) Execute(ctx context.Context, req Request) (*Result, error) {
	if !fileutil.FileExists(req.Layout.RawVocals()) {
		return nil, services.Wrap(services.ErrValidation, refinementStage, "refine",
			"no raw vocals to refine", nil)
	}

	args := []string{
		"--input", req.Layout.RawVocals(),
		"--output", req.Layout.RefinedVocals(),
	}
	if r.ModelsDir != "" {
		args = append(args, "--models", r.ModelsDir)
	}
	if req.Project != nil && req.Project.VoiceModel != "" {
		args = append(args, "--voice", req.Project.VoiceModel)
	}

	req.Report(10, "refining vocals")
	if _, err := runCommand(ctx, refinementStage, r.Binary, args...); err != nil {
		return nil, err
	}
	req.Report(100, "vocals refined")
	return &Result{Engine: r.Name()}, nil
}

// BuiltinRefiner smooths the raw take with filtering, gentle compression,
// and re-normalization. Deterministic and dependency-free.
type BuiltinRefiner struct{}

func (r *BuiltinRefiner) Name() string { return "builtin-refinement" }

func (r *BuiltinRefiner) Available(ctx context.Context) error { return nil }

func (r *BuiltinRefiner) Execute(ctx context.Context, req Request) (*Result, error) {
	req.Report(10, "loading raw vocals")
	buf, err := audio.ReadWAVFile(req.Layout.RawVocals())
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, refinementStage, "refine",
			"raw vocals missing or unreadable", err)
	}

	req.Report(40, "smoothing vocal take")
	audio.HighPass(buf, 90)   // rumble
	audio.LowPass(buf, 12000) // synthesis fizz
	audio.Compress(buf, 0.5, 3)
	audio.Normalize(buf, 0.85)

	req.Report(85, "writing refined vocals")
	if err := audio.WriteWAVFile(req.Layout.RefinedVocals(), buf); err != nil {
		return nil, services.Wrap(services.ErrProcessing, refinementStage, "refine", "write refined vocals", err)
	}
	req.Report(100, "vocals refined")
	return &Result{Engine: r.Name()}, nil
}
