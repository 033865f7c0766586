package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngines(); err != nil {
		return err
	}
	c.normalizeSynthesis()
	c.normalizeUpload()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ProjectsDir) == "" {
		c.Paths.ProjectsDir = defaultProjectsDir
	}
	if c.Paths.ProjectsDir, err = expandPath(c.Paths.ProjectsDir); err != nil {
		return fmt.Errorf("paths.projects_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeEngines() error {
	var err error
	// Model directories may contain ~; binaries are looked up on PATH
	// when given as bare names, so only expand paths with separators.
	if c.Engines.DiffSingerModels, err = expandPath(c.Engines.DiffSingerModels); err != nil {
		return fmt.Errorf("engines.diffsinger_models: %w", err)
	}
	if c.Engines.ACEStepModels, err = expandPath(c.Engines.ACEStepModels); err != nil {
		return fmt.Errorf("engines.acestep_models: %w", err)
	}
	if c.Engines.RVCModels, err = expandPath(c.Engines.RVCModels); err != nil {
		return fmt.Errorf("engines.rvc_models: %w", err)
	}
	return nil
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Engine = strings.ToLower(strings.TrimSpace(c.Synthesis.Engine))
	if c.Synthesis.Engine == "" {
		c.Synthesis.Engine = defaultSynthesisEngine
	}
	if strings.TrimSpace(c.Synthesis.VoiceModel) == "" {
		c.Synthesis.VoiceModel = defaultVoiceModel
	}
	if strings.TrimSpace(c.Synthesis.Language) == "" {
		c.Synthesis.Language = defaultLanguage
	}
	if strings.TrimSpace(c.Synthesis.MixPreset) == "" {
		c.Synthesis.MixPreset = defaultMixPreset
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.MaxSizeMB <= 0 {
		c.Upload.MaxSizeMB = defaultMaxUploadSizeMB
	}
	if len(c.Upload.AllowedFormats) == 0 {
		c.Upload.AllowedFormats = Default().Upload.AllowedFormats
	}
	for i, format := range c.Upload.AllowedFormats {
		c.Upload.AllowedFormats[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
