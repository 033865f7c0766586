package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	ProjectsDir string `toml:"projects_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
}

// Engines contains locations and identifiers for the primary stage engines.
// A missing binary or model directory makes the stage fall back to the
// built-in deterministic engine; it never fails the pipeline on its own.
type Engines struct {
	FFprobeBinary    string `toml:"ffprobe_binary"`
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	PitchBinary      string `toml:"pitch_binary"`
	DiffSingerBinary string `toml:"diffsinger_binary"`
	DiffSingerModels string `toml:"diffsinger_models"`
	ACEStepBinary    string `toml:"acestep_binary"`
	ACEStepModels    string `toml:"acestep_models"`
	RVCBinary        string `toml:"rvc_binary"`
	RVCModels        string `toml:"rvc_models"`
	MixBinary        string `toml:"mix_binary"`
}

// Workflow contains worker pool and stage execution tuning.
type Workflow struct {
	Workers             int `toml:"workers"`
	QueuePollInterval   int `toml:"queue_poll_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	HeartbeatTimeout    int `toml:"heartbeat_timeout"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	EngineRetries       int `toml:"engine_retries"`
	EngineRetryBackoff  int `toml:"engine_retry_backoff_ms"`
}

// Synthesis contains defaults applied to new projects.
type Synthesis struct {
	Engine     string `toml:"engine"`
	VoiceModel string `toml:"voice_model"`
	Language   string `toml:"language"`
	MixPreset  string `toml:"mix_preset"`
}

// Upload constrains instrumental uploads.
type Upload struct {
	MaxSizeMB      int      `toml:"max_size_mb"`
	AllowedFormats []string `toml:"allowed_formats"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the clovis daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: project storage, logs, and API bind address
//   - Engines: primary engine binaries and model directories
//   - Workflow: worker pool size, polling, heartbeats, stage timeouts
//   - Synthesis: per-project defaults (engine, voice, language, mix preset)
//   - Upload: instrumental upload constraints
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Engines   Engines   `toml:"engines"`
	Workflow  Workflow  `toml:"workflow"`
	Synthesis Synthesis `toml:"synthesis"`
	Upload    Upload    `toml:"upload"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clovis/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("clovis.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ProjectsDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ProjectDir returns the artifact directory for a project.
func (c *Config) ProjectDir(projectID string) string {
	return filepath.Join(c.Paths.ProjectsDir, projectID)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || (len(path) > 1 && path[0] == '~' && path[1] == '/') {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
