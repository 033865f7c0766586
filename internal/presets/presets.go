// Package presets ships the built-in mix preset and voice model catalogs.
// The catalog is embedded YAML so the daemon and CLI always agree on what
// exists without a registry service.
package presets

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var catalogYAML []byte

// MixPreset describes the processing chain applied at the mix stage.
type MixPreset struct {
	Name               string  `yaml:"name"`
	Description        string  `yaml:"description"`
	VocalGainDB        float64 `yaml:"vocal_gain_db"`
	InstrumentalGainDB float64 `yaml:"instrumental_gain_db"`
	CompressThreshold  float64 `yaml:"compress_threshold"`
	CompressRatio      float64 `yaml:"compress_ratio"`
	ReverbWet          float64 `yaml:"reverb_wet"`
	ReverbDecay        float64 `yaml:"reverb_decay"`
	ReverbDelay        float64 `yaml:"reverb_delay"`
	HighPassHz         float64 `yaml:"high_pass_hz"`
	LowPassHz          float64 `yaml:"low_pass_hz"`
	LimiterCeiling     float64 `yaml:"limiter_ceiling"`
}

// VoiceModel describes one installable synthesis voice.
type VoiceModel struct {
	Name        string `yaml:"name"`
	Engine      string `yaml:"engine"`
	Description string `yaml:"description"`
	Transpose   int    `yaml:"transpose"`
}

type catalog struct {
	MixPresets  []MixPreset  `yaml:"mix_presets"`
	VoiceModels []VoiceModel `yaml:"voice_models"`
}

var loaded catalog

func init() {
	if err := yaml.Unmarshal(catalogYAML, &loaded); err != nil {
		panic(fmt.Sprintf("presets: embedded catalog is invalid: %v", err))
	}
	if len(loaded.MixPresets) == 0 {
		panic("presets: embedded catalog has no mix presets")
	}
}

// DefaultMixPreset is used when a project does not choose one.
const DefaultMixPreset = "balanced"

// MixPresets returns the catalog in declaration order.
func MixPresets() []MixPreset {
	out := make([]MixPreset, len(loaded.MixPresets))
	copy(out, loaded.MixPresets)
	return out
}

// MixPresetByName finds a preset case-insensitively.
func MixPresetByName(name string) (MixPreset, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		needle = DefaultMixPreset
	}
	for _, p := range loaded.MixPresets {
		if p.Name == needle {
			return p, true
		}
	}
	return MixPreset{}, false
}

// VoiceModels returns the voices available for a given engine. An empty
// engine returns every voice.
func VoiceModels(engine string) []VoiceModel {
	needle := strings.ToLower(strings.TrimSpace(engine))
	var out []VoiceModel
	for _, v := range loaded.VoiceModels {
		if needle == "" || v.Engine == needle {
			out = append(out, v)
		}
	}
	return out
}

// VoiceModelByName finds a voice case-insensitively.
func VoiceModelByName(name string) (VoiceModel, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, v := range loaded.VoiceModels {
		if v.Name == needle {
			return v, true
		}
	}
	return VoiceModel{}, false
}
