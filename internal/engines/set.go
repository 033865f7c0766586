package engines

import (
	"log/slog"
	"strings"
	"time"

	"clovis/internal/config"
)

// Set bundles the ready-to-run adapter for every pipeline stage.
type Set struct {
	Analysis   *Adapter
	Melody     *Adapter
	Refinement *Adapter
	Mix        *Adapter

	diffsinger       *Adapter
	acestep          *Adapter
	defaultSynthesis string
}

// NewSet builds stage adapters from the configured binaries. Every stage
// carries a built-in fallback, so the set is usable on a machine with no
// external tools installed.
func NewSet(cfg *config.Config, logger *slog.Logger) *Set {
	retries := cfg.Workflow.EngineRetries
	backoff := time.Duration(cfg.Workflow.EngineRetryBackoff) * time.Millisecond

	return &Set{
		Analysis: NewAdapter("analysis",
			&FFprobeAnalyzer{Binary: cfg.Engines.FFprobeBinary},
			&BuiltinAnalyzer{},
			retries, backoff, logger),
		Melody: NewAdapter("melody",
			&MelodyExtractor{Binary: cfg.Engines.PitchBinary},
			&BuiltinMelodist{},
			retries, backoff, logger),
		Refinement: NewAdapter("refinement",
			&RVCRefiner{Binary: cfg.Engines.RVCBinary, ModelsDir: cfg.Engines.RVCModels},
			&BuiltinRefiner{},
			retries, backoff, logger),
		Mix: NewAdapter("mix",
			&PedalboardMixer{Binary: cfg.Engines.MixBinary},
			&BuiltinMixer{},
			retries, backoff, logger),
		diffsinger: NewAdapter("synthesis",
			&CommandSynthesizer{EngineName: "diffsinger", Binary: cfg.Engines.DiffSingerBinary, ModelsDir: cfg.Engines.DiffSingerModels},
			&BuiltinSynthesizer{},
			retries, backoff, logger),
		acestep: NewAdapter("synthesis",
			&CommandSynthesizer{EngineName: "acestep", Binary: cfg.Engines.ACEStepBinary, ModelsDir: cfg.Engines.ACEStepModels},
			&BuiltinSynthesizer{},
			retries, backoff, logger),
		defaultSynthesis: cfg.Synthesis.Engine,
	}
}

// Adapters lists every stage adapter, synthesis variants included. Used for
// availability reporting.
func (s *Set) Adapters() []*Adapter {
	return []*Adapter{s.Analysis, s.Melody, s.diffsinger, s.acestep, s.Refinement, s.Mix}
}

// SynthesisFor selects the synthesis adapter for a project's engine choice,
// falling back to the configured default.
func (s *Set) SynthesisFor(engine string) *Adapter {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "acestep":
		return s.acestep
	case "diffsinger":
		return s.diffsinger
	}
	if s.defaultSynthesis == "acestep" {
		return s.acestep
	}
	return s.diffsinger
}
