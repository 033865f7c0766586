package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"clovis/internal/melody"
	"clovis/internal/services"
)

const melodyStage = "melody"

// MelodyExtractor shells out to the melody extraction tool, which analyzes
// the instrumental and prints candidate vocal-line notes as JSON.
type MelodyExtractor struct {
	Binary string
}

func (e *MelodyExtractor) Name() string { return "melody-extract" }

func (e *MelodyExtractor) Available(ctx context.Context) error {
	return checkBinary(melodyStage, "melody-extract", e.Binary)
}

func (e *MelodyExtractor) Execute(ctx context.Context, req Request) (*Result, error) {
	path, ok := req.Layout.FindInstrumental()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, melodyStage, "extract",
			"no instrumental uploaded", nil)
	}

	args := []string{"--input", path, "--format", "json"}
	if req.Project != nil && req.Project.BPM > 0 {
		args = append(args, "--bpm", fmt.Sprintf("%.1f", req.Project.BPM))
	}
	if req.Project != nil && req.Project.MusicalKey != "" {
		args = append(args, "--key", req.Project.MusicalKey)
	}

	req.Report(15, "extracting melody line")
	output, err := runCommand(ctx, melodyStage, e.Binary, args...)
	if err != nil {
		return nil, err
	}

	var m melody.Melody
	if err := json.Unmarshal(output, &m); err != nil {
		return nil, services.Wrap(services.ErrProcessing, melodyStage, "extract",
			"melody extractor produced unreadable output", err)
	}
	if m.BPM <= 0 && req.Project != nil {
		m.BPM = req.Project.BPM
	}
	if err := m.Validate(); err != nil {
		return nil, services.Wrap(services.ErrProcessing, melodyStage, "extract",
			"melody extractor produced an unusable melody", err)
	}

	req.Report(80, "writing melody")
	if err := melody.Save(req.Layout.MelodyJSON(), &m); err != nil {
		return nil, services.Wrap(services.ErrProcessing, melodyStage, "extract", "save melody", err)
	}
	req.Report(100, "melody extracted")
	return &Result{Engine: e.Name()}, nil
}

// BuiltinMelodist composes a deterministic melody from the lyrics, tempo, and
// key alone. The same project inputs always yield the same line.
type BuiltinMelodist struct{}

func (e *BuiltinMelodist) Name() string { return "builtin-melody" }

func (e *BuiltinMelodist) Available(ctx context.Context) error { return nil }

func (e *BuiltinMelodist) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Project == nil || strings.TrimSpace(req.Project.Lyrics) == "" {
		return nil, services.Wrap(services.ErrValidation, melodyStage, "compose",
			"lyrics are required to compose a melody", nil)
	}

	bpm := req.Project.BPM
	if bpm <= 0 {
		bpm = defaultBPM
	}

	req.Report(20, "composing melody from lyrics")
	m := composeMelody(req.Project.ID, req.Project.Lyrics, bpm, req.Project.MusicalKey)

	req.Report(80, "writing melody")
	if err := melody.Save(req.Layout.MelodyJSON(), m); err != nil {
		return nil, services.Wrap(services.ErrProcessing, melodyStage, "compose", "save melody", err)
	}
	req.Report(100, "melody composed")
	return &Result{Engine: e.Name()}, nil
}

var (
	majorScale = []int{0, 2, 4, 5, 7, 9, 11}
	minorScale = []int{0, 2, 3, 5, 7, 8, 10}
)

// composeMelody walks a scale seeded by the project and lyrics: one note per
// syllable on an eighth-note pulse, with small seeded interval moves.
func composeMelody(seedKey, lyrics string, bpm float64, key string) *melody.Melody {
	syllables := melody.Syllabify(lyrics)
	if len(syllables) == 0 {
		syllables = []string{"la"}
	}

	tonic, scale := parseKey(key)
	base := 60 + tonic // tonic around middle C

	h := fnv.New64a()
	_, _ = h.Write([]byte(seedKey))
	_, _ = h.Write([]byte(lyrics))
	state := h.Sum64()
	next := func(n uint64) uint64 {
		state = state*6364136223846793005 + 1442695040888963407
		return state % n
	}

	beat := 60.0 / bpm
	m := &melody.Melody{BPM: bpm, Key: key}

	degree := 0
	cursor := 0.0
	for _, syllable := range syllables {
		// steps of up to a third, biased back toward the tonic
		move := int(next(5)) - 2
		degree += move
		if degree < -3 || degree > 8 {
			degree = 0
		}

		octave := degree / len(scale)
		idx := degree % len(scale)
		if idx < 0 {
			idx += len(scale)
			octave--
		}
		pitch := base + octave*12 + scale[idx]

		duration := beat / 2
		if next(4) == 0 {
			duration = beat
		}

		m.Notes = append(m.Notes, melody.Note{
			Start:    cursor,
			Duration: duration,
			Pitch:    pitch,
			Syllable: syllable,
			Velocity: 0.7 + float64(next(3))*0.1,
		})
		cursor += duration
	}
	return m
}

// parseKey maps a key name like "A minor" to a tonic pitch class and scale.
func parseKey(key string) (int, []int) {
	fields := strings.Fields(strings.TrimSpace(key))
	if len(fields) == 0 {
		return 0, majorScale
	}
	tonic := 0
	for i, name := range pitchClassNames {
		if strings.EqualFold(fields[0], name) {
			tonic = i
			break
		}
	}
	if len(fields) > 1 && strings.EqualFold(fields[1], "minor") {
		return tonic, minorScale
	}
	return tonic, majorScale
}
