// Package melody models the extracted vocal line: timed, pitched notes with
// assigned lyric syllables, plus the transforms applied between extraction and
// synthesis.
package melody

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"clovis/internal/fileutil"
	"clovis/internal/services"
)

// Note is one sung event. Times are in seconds, pitch is a MIDI note number.
type Note struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Pitch    int     `json:"pitch"`
	Syllable string  `json:"syllable,omitempty"`
	Velocity float64 `json:"velocity,omitempty"`
}

// End returns the note's off time.
func (n Note) End() float64 { return n.Start + n.Duration }

// Melody is the full extracted line with its musical context.
type Melody struct {
	BPM      float64 `json:"bpm"`
	Key      string  `json:"key,omitempty"`
	Language string  `json:"language,omitempty"`
	Notes    []Note  `json:"notes"`
}

// Duration returns the end time of the last note in seconds.
func (m *Melody) Duration() float64 {
	end := 0.0
	for _, n := range m.Notes {
		if e := n.End(); e > end {
			end = e
		}
	}
	return end
}

// Sort orders notes by start time, stable on pitch.
func (m *Melody) Sort() {
	sort.SliceStable(m.Notes, func(i, j int) bool {
		if m.Notes[i].Start != m.Notes[j].Start {
			return m.Notes[i].Start < m.Notes[j].Start
		}
		return m.Notes[i].Pitch < m.Notes[j].Pitch
	})
}

// Transpose shifts every note by the given number of semitones, clamped to
// the MIDI range.
func (m *Melody) Transpose(semitones int) {
	for i := range m.Notes {
		p := m.Notes[i].Pitch + semitones
		if p < 0 {
			p = 0
		}
		if p > 127 {
			p = 127
		}
		m.Notes[i].Pitch = p
	}
}

// Validate checks the melody is usable for synthesis.
func (m *Melody) Validate() error {
	if m.BPM <= 0 {
		return services.Wrap(services.ErrValidation, "melody", "validate", "bpm must be positive", nil)
	}
	if len(m.Notes) == 0 {
		return services.Wrap(services.ErrValidation, "melody", "validate", "melody has no notes", nil)
	}
	for i, n := range m.Notes {
		if n.Start < 0 || n.Duration <= 0 {
			return services.Wrap(services.ErrValidation, "melody", "validate",
				fmt.Sprintf("note %d has invalid timing", i), nil)
		}
		if n.Pitch < 0 || n.Pitch > 127 {
			return services.Wrap(services.ErrValidation, "melody", "validate",
				fmt.Sprintf("note %d pitch out of midi range", i), nil)
		}
	}
	return nil
}

// Load reads a melody JSON file.
func Load(path string) (*Melody, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read melody: %w", err)
	}
	var m Melody
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse melody: %w", err)
	}
	return &m, nil
}

// Save writes the melody as JSON, atomically.
func Save(path string, m *Melody) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal melody: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write melody: %w", err)
	}
	return nil
}
