// Package artifacts defines the on-disk layout of a project workspace.
//
// Every project owns one directory under the configured projects root. Stage
// outputs live at fixed names inside it, so completion can always be derived
// by probing the filesystem instead of trusting persisted state.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"clovis/internal/config"
	"clovis/internal/fileutil"
	"clovis/internal/projects"
)

const (
	instrumentalBase = "instrumental"
	melodyJSONName   = "melody.json"
	melodyMIDIName   = "melody.mid"
	rawVocalsName    = "vocals_raw.wav"
	refinedName      = "vocals_refined.wav"
	finalMixName     = "mix_final.wav"
	vocalConfigName  = "vocal_config.json"
	exportsDirName   = "exports"
)

// Layout resolves artifact paths inside one project's workspace directory.
type Layout struct {
	root string
}

// NewLayout builds the layout for a project.
func NewLayout(cfg *config.Config, projectID string) Layout {
	return Layout{root: cfg.ProjectDir(projectID)}
}

// LayoutAt builds a layout rooted at an explicit directory. Used by tests and
// tools that operate outside a full config.
func LayoutAt(root string) Layout {
	return Layout{root: root}
}

// Root returns the project workspace directory.
func (l Layout) Root() string { return l.root }

// Ensure creates the workspace and exports directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.root, l.ExportsDir()} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return fmt.Errorf("ensure artifact dir %s: %w", dir, err)
		}
	}
	return nil
}

// Instrumental returns the path for an instrumental in the given format.
func (l Layout) Instrumental(format string) string {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	return filepath.Join(l.root, instrumentalBase+"."+ext)
}

// FindInstrumental locates the uploaded instrumental regardless of format.
func (l Layout) FindInstrumental() (string, bool) {
	matches, err := filepath.Glob(filepath.Join(l.root, instrumentalBase+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	for _, match := range matches {
		if fileutil.FileExists(match) {
			return match, true
		}
	}
	return "", false
}

// MelodyJSON returns the path of the extracted melody notes.
func (l Layout) MelodyJSON() string { return filepath.Join(l.root, melodyJSONName) }

// MelodyMIDI returns the path of the melody exported as a standard MIDI file.
func (l Layout) MelodyMIDI() string { return filepath.Join(l.root, melodyMIDIName) }

// RawVocals returns the path of the synthesized vocal take.
func (l Layout) RawVocals() string { return filepath.Join(l.root, rawVocalsName) }

// RefinedVocals returns the path of the refined vocal take.
func (l Layout) RefinedVocals() string { return filepath.Join(l.root, refinedName) }

// FinalMix returns the path of the finished mix.
func (l Layout) FinalMix() string { return filepath.Join(l.root, finalMixName) }

// VocalConfig returns the path of the per-project synthesis settings snapshot.
func (l Layout) VocalConfig() string { return filepath.Join(l.root, vocalConfigName) }

// ExportsDir returns the directory holding user-requested exports.
func (l Layout) ExportsDir() string { return filepath.Join(l.root, exportsDirName) }

// Presence probes the filesystem for every stage output.
func (l Layout) Presence() projects.ArtifactSet {
	_, hasInstrumental := l.FindInstrumental()
	return projects.ArtifactSet{
		Instrumental:  hasInstrumental,
		Melody:        fileutil.FileExists(l.MelodyJSON()),
		RawVocals:     fileutil.FileExists(l.RawVocals()),
		RefinedVocals: fileutil.FileExists(l.RefinedVocals()),
		FinalMix:      fileutil.FileExists(l.FinalMix()),
	}
}

// StepOutput maps a processing stage to its primary artifact path. Analysis
// has no file output; it records metadata on the project instead.
func (l Layout) StepOutput(step projects.Step) (string, bool) {
	switch step {
	case projects.StepMelody:
		return l.MelodyJSON(), true
	case projects.StepSynthesis:
		return l.RawVocals(), true
	case projects.StepRefinement:
		return l.RefinedVocals(), true
	case projects.StepMix:
		return l.FinalMix(), true
	default:
		return "", false
	}
}

// ClearFrom removes the outputs of the given stage and every later stage so a
// re-run regenerates them instead of serving stale files.
func (l Layout) ClearFrom(step projects.Step) error {
	clearing := false
	for _, s := range projects.PipelineOrder {
		if s == step {
			clearing = true
		}
		if !clearing {
			continue
		}
		path, ok := l.StepOutput(s)
		if !ok {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear artifact %s: %w", path, err)
		}
		if s == projects.StepMelody {
			if err := os.Remove(l.MelodyMIDI()); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("clear artifact %s: %w", l.MelodyMIDI(), err)
			}
		}
	}
	return nil
}
