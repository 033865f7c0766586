package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"clovis/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ProjectsDir = filepath.Join(base, "projects")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers overrides the worker pool size on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = workers
	}
}

// WithSynthesisEngine overrides the default synthesis engine on the test config.
func WithSynthesisEngine(engine string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Synthesis.Engine = engine
	}
}

// WithFallbackEngines points every engine binary at a name that cannot
// resolve, forcing the deterministic built-in engines.
func WithFallbackEngines() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engines.FFprobeBinary = "clovis-test-missing-ffprobe"
		b.cfg.Engines.FFmpegBinary = "clovis-test-missing-ffmpeg"
		b.cfg.Engines.PitchBinary = "clovis-test-missing-melody"
		b.cfg.Engines.DiffSingerBinary = "clovis-test-missing-diffsinger"
		b.cfg.Engines.ACEStepBinary = "clovis-test-missing-acestep"
		b.cfg.Engines.RVCBinary = "clovis-test-missing-rvc"
		b.cfg.Engines.MixBinary = "clovis-test-missing-mix"
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default clovis external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffprobe", "ffmpeg", "melody-extract", "diffsinger-infer", "rvc-convert", "pedalboard-mix"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ProjectsDir)
}
