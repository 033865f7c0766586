package engines

import (
	"context"
	"math"
	"os"
	"reflect"
	"testing"

	"clovis/internal/artifacts"
	"clovis/internal/audio"
	"clovis/internal/melody"
	"clovis/internal/projects"
)

func testProject(id string) *projects.Project {
	return &projects.Project{
		ID:       id,
		Name:     "test",
		Lyrics:   "sotto il cielo della sera",
		Language: "it",
		BPM:      120,
	}
}

func TestBuiltinMelodistIsDeterministic(t *testing.T) {
	ctx := context.Background()
	project := testProject("project-a")

	layoutA := artifacts.LayoutAt(t.TempDir())
	layoutB := artifacts.LayoutAt(t.TempDir())
	melodist := &BuiltinMelodist{}

	if _, err := melodist.Execute(ctx, Request{Project: project, Layout: layoutA}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := melodist.Execute(ctx, Request{Project: project, Layout: layoutB}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	first, err := melody.Load(layoutA.MelodyJSON())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := melody.Load(layoutB.MelodyJSON())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same inputs must compose the same melody")
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("composed melody invalid: %v", err)
	}
	if len(first.Notes) == 0 {
		t.Fatal("expected notes for every syllable")
	}
}

func TestBuiltinMelodistRequiresLyrics(t *testing.T) {
	melodist := &BuiltinMelodist{}
	project := testProject("p")
	project.Lyrics = "  "

	if _, err := melodist.Execute(context.Background(), Request{Project: project, Layout: artifacts.LayoutAt(t.TempDir())}); err == nil {
		t.Fatal("expected error without lyrics")
	}
}

func TestBuiltinSynthesizerRendersVocals(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())
	m := &melody.Melody{
		BPM: 120,
		Notes: []melody.Note{
			{Start: 0, Duration: 0.5, Pitch: 64, Syllable: "la", Velocity: 0.8},
			{Start: 0.5, Duration: 0.5, Pitch: 67, Syllable: "le", Velocity: 0.8},
		},
	}

	synth := &BuiltinSynthesizer{}
	result, err := synth.Execute(context.Background(), Request{
		Project: testProject("p"),
		Layout:  layout,
		Melody:  m,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Engine != "builtin-synthesis" {
		t.Fatalf("unexpected engine name %q", result.Engine)
	}

	buf, err := audio.ReadWAVFile(layout.RawVocals())
	if err != nil {
		t.Fatalf("read rendered vocals: %v", err)
	}
	if buf.Peak() == 0 {
		t.Fatal("rendered vocals are silent")
	}
	if buf.Duration().Seconds() < m.Duration() {
		t.Fatalf("rendered %fs for a %fs melody", buf.Duration().Seconds(), m.Duration())
	}
}

func TestBuiltinSynthesizerCoversInstrumentalDuration(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())
	m := &melody.Melody{
		BPM:   120,
		Notes: []melody.Note{{Start: 0, Duration: 0.5, Pitch: 64, Syllable: "la", Velocity: 0.8}},
	}
	project := testProject("p")
	project.DurationSeconds = 5

	synth := &BuiltinSynthesizer{}
	if _, err := synth.Execute(context.Background(), Request{Project: project, Layout: layout, Melody: m}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	buf, err := audio.ReadWAVFile(layout.RawVocals())
	if err != nil {
		t.Fatalf("read rendered vocals: %v", err)
	}
	if got := buf.Duration().Seconds(); got < 5 {
		t.Fatalf("rendered %fs, want at least the 5s instrumental", got)
	}
}

func TestBuiltinRefinerSmoothsTake(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	raw := audio.NewBuffer(44100, 1, 44100)
	for i := range raw.Samples {
		raw.Samples[i] = 0.9 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.RawVocals(), raw); err != nil {
		t.Fatalf("write raw vocals: %v", err)
	}

	refiner := &BuiltinRefiner{}
	if _, err := refiner.Execute(context.Background(), Request{Layout: layout}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	refined, err := audio.ReadWAVFile(layout.RefinedVocals())
	if err != nil {
		t.Fatalf("read refined vocals: %v", err)
	}
	if peak := refined.Peak(); peak == 0 || peak > 0.9 {
		t.Fatalf("expected normalized non-silent output, peak=%f", peak)
	}
}

func TestBuiltinMixerProducesStereoMix(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	vocals := audio.NewBuffer(44100, 1, 44100)
	for i := range vocals.Samples {
		vocals.Samples[i] = 0.5 * math.Sin(2*math.Pi*330*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.RefinedVocals(), vocals); err != nil {
		t.Fatalf("write refined vocals: %v", err)
	}

	instrumental := audio.NewBuffer(44100, 2, 44100)
	for i := 0; i < instrumental.Frames(); i++ {
		v := 0.4 * math.Sin(2*math.Pi*110*float64(i)/44100)
		instrumental.Samples[i*2] = v
		instrumental.Samples[i*2+1] = v
	}
	if err := audio.WriteWAVFile(layout.Instrumental("wav"), instrumental); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}

	project := testProject("p")
	project.MixPreset = "balanced"

	mixer := &BuiltinMixer{}
	if _, err := mixer.Execute(context.Background(), Request{Project: project, Layout: layout}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mix, err := audio.ReadWAVFile(layout.FinalMix())
	if err != nil {
		t.Fatalf("read final mix: %v", err)
	}
	if mix.Channels != 2 {
		t.Fatalf("expected stereo mix, got %d channels", mix.Channels)
	}
	if peak := mix.Peak(); peak == 0 || peak > 0.96 {
		t.Fatalf("expected limited non-silent mix, peak=%f", peak)
	}
}

func TestBuiltinMixerKeepsInstrumentalDuration(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	vocals := audio.NewBuffer(44100, 1, 44100)
	for i := range vocals.Samples {
		vocals.Samples[i] = 0.5 * math.Sin(2*math.Pi*330*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.RefinedVocals(), vocals); err != nil {
		t.Fatalf("write refined vocals: %v", err)
	}

	// four seconds at a different sample rate than the vocal take
	instrumental := audio.NewBuffer(22050, 1, 22050*4)
	for i := range instrumental.Samples {
		instrumental.Samples[i] = 0.4 * math.Sin(2*math.Pi*110*float64(i)/22050)
	}
	if err := audio.WriteWAVFile(layout.Instrumental("wav"), instrumental); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}

	project := testProject("p")
	project.DurationSeconds = 4

	mixer := &BuiltinMixer{}
	if _, err := mixer.Execute(context.Background(), Request{Project: project, Layout: layout}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mix, err := audio.ReadWAVFile(layout.FinalMix())
	if err != nil {
		t.Fatalf("read final mix: %v", err)
	}
	if got := mix.Duration().Seconds(); math.Abs(got-4) > 0.5 {
		t.Fatalf("mix is %fs, want within 0.5s of the 4s instrumental", got)
	}
	// the instrumental must actually sound in the padded tail
	tail := mix.Samples[len(mix.Samples)/2:]
	peak := 0.0
	for _, s := range tail {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		t.Fatal("instrumental missing from the mix tail")
	}
}

func TestBuiltinMixerTrimsOverlongVocals(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	vocals := audio.NewBuffer(44100, 1, 44100*6)
	for i := range vocals.Samples {
		vocals.Samples[i] = 0.5 * math.Sin(2*math.Pi*330*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.RefinedVocals(), vocals); err != nil {
		t.Fatalf("write refined vocals: %v", err)
	}
	instrumental := audio.NewBuffer(44100, 1, 44100*4)
	for i := range instrumental.Samples {
		instrumental.Samples[i] = 0.4 * math.Sin(2*math.Pi*110*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.Instrumental("wav"), instrumental); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}

	mixer := &BuiltinMixer{}
	if _, err := mixer.Execute(context.Background(), Request{Project: testProject("p"), Layout: layout}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mix, err := audio.ReadWAVFile(layout.FinalMix())
	if err != nil {
		t.Fatalf("read final mix: %v", err)
	}
	if got := mix.Duration().Seconds(); math.Abs(got-4) > 0.5 {
		t.Fatalf("mix is %fs, want the 4s instrumental to bound it", got)
	}
}

func TestBuiltinMixerPadsToAnalyzedDurationWithoutWAV(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	vocals := audio.NewBuffer(44100, 1, 44100)
	for i := range vocals.Samples {
		vocals.Samples[i] = 0.5 * math.Sin(2*math.Pi*330*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.RefinedVocals(), vocals); err != nil {
		t.Fatalf("write refined vocals: %v", err)
	}
	if err := os.WriteFile(layout.Instrumental("mp3"), []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}

	project := testProject("p")
	project.DurationSeconds = 3

	mixer := &BuiltinMixer{}
	if _, err := mixer.Execute(context.Background(), Request{Project: project, Layout: layout}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mix, err := audio.ReadWAVFile(layout.FinalMix())
	if err != nil {
		t.Fatalf("read final mix: %v", err)
	}
	if got := mix.Duration().Seconds(); math.Abs(got-3) > 0.5 {
		t.Fatalf("mix is %fs, want within 0.5s of the analyzed 3s", got)
	}
}

func TestBuiltinAnalyzerMeasuresWAV(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	// two seconds of clicks at 120 BPM over an A pedal tone
	const rate = 44100
	buf := audio.NewBuffer(rate, 1, rate*4)
	for i := range buf.Samples {
		buf.Samples[i] = 0.2 * math.Sin(2*math.Pi*220*float64(i)/rate)
	}
	for beat := 0; beat < 8; beat++ {
		start := beat * rate / 2 // 0.5s spacing = 120 BPM
		for i := 0; i < rate/40 && start+i < len(buf.Samples); i++ {
			buf.Samples[start+i] += 0.7 * math.Sin(2*math.Pi*880*float64(i)/rate)
		}
	}
	if err := audio.WriteWAVFile(layout.Instrumental("wav"), buf); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}

	analyzer := &BuiltinAnalyzer{}
	result, err := analyzer.Execute(context.Background(), Request{Project: testProject("p"), Layout: layout})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.SampleRate != rate {
		t.Fatalf("expected sample rate %d, got %d", rate, result.SampleRate)
	}
	if math.Abs(result.DurationSeconds-4.0) > 0.05 {
		t.Fatalf("expected ~4s duration, got %f", result.DurationSeconds)
	}
	if result.BPM < 60 || result.BPM > 180 {
		t.Fatalf("estimated tempo out of range: %f", result.BPM)
	}
	if result.MusicalKey == "" {
		t.Fatal("expected a key estimate")
	}
}
