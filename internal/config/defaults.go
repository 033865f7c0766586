package config

const (
	defaultProjectsDir         = "~/.local/share/clovis/projects"
	defaultLogDir              = "~/.local/share/clovis/logs"
	defaultAPIBind             = "127.0.0.1:8710"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultWorkers             = 2
	defaultQueuePollInterval   = 2
	defaultErrorRetryInterval  = 5
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultStageTimeoutSeconds = 1800
	defaultEngineRetries       = 2
	defaultEngineRetryBackoff  = 500
	defaultSynthesisEngine     = "diffsinger"
	defaultVoiceModel          = "leif"
	defaultLanguage            = "it"
	defaultMixPreset           = "balanced"
	defaultMaxUploadSizeMB     = 100
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectsDir: defaultProjectsDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Engines: Engines{
			FFprobeBinary:    "ffprobe",
			FFmpegBinary:     "ffmpeg",
			PitchBinary:      "melody-extract",
			DiffSingerBinary: "diffsinger-infer",
			DiffSingerModels: "~/.local/share/clovis/models/diffsinger",
			ACEStepBinary:    "acestep-infer",
			ACEStepModels:    "~/.local/share/clovis/models/acestep",
			RVCBinary:        "rvc-convert",
			RVCModels:        "~/.local/share/clovis/models/rvc",
			MixBinary:        "pedalboard-mix",
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			EngineRetries:       defaultEngineRetries,
			EngineRetryBackoff:  defaultEngineRetryBackoff,
		},
		Synthesis: Synthesis{
			Engine:     defaultSynthesisEngine,
			VoiceModel: defaultVoiceModel,
			Language:   defaultLanguage,
			MixPreset:  defaultMixPreset,
		},
		Upload: Upload{
			MaxSizeMB:      defaultMaxUploadSizeMB,
			AllowedFormats: []string{"wav", "mp3", "flac", "ogg", "m4a"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
