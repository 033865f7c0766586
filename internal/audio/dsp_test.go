package audio_test

import (
	"math"
	"testing"

	"clovis/internal/audio"
)

func sineBuffer(rate, frames int, freq, amp float64) *audio.Buffer {
	b := audio.NewBuffer(rate, 1, frames)
	for i := range b.Samples {
		b.Samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return b
}

func TestNormalizeHitsTarget(t *testing.T) {
	b := sineBuffer(44100, 4410, 220, 0.25)
	audio.Normalize(b, 0.9)
	if peak := b.Peak(); math.Abs(peak-0.9) > 0.01 {
		t.Fatalf("expected peak near 0.9, got %f", peak)
	}
}

func TestCompressReducesPeaksOnly(t *testing.T) {
	b := sineBuffer(44100, 4410, 220, 0.8)
	quiet := sineBuffer(44100, 4410, 220, 0.2)

	audio.Compress(b, 0.5, 4)
	audio.Compress(quiet, 0.5, 4)

	if peak := b.Peak(); peak >= 0.8 || peak <= 0.5 {
		t.Fatalf("expected peak compressed into (0.5, 0.8), got %f", peak)
	}
	if peak := quiet.Peak(); math.Abs(peak-0.2) > 0.001 {
		t.Fatalf("expected sub-threshold signal untouched, got peak %f", peak)
	}
}

func TestLimitNeverExceedsCeiling(t *testing.T) {
	b := sineBuffer(44100, 4410, 220, 2.5)
	audio.Limit(b, 0.95)
	if peak := b.Peak(); peak > 0.95 {
		t.Fatalf("expected peak <= 0.95, got %f", peak)
	}
}

func TestMixIntoRespectsGain(t *testing.T) {
	dst := audio.NewBuffer(44100, 1, 100)
	src := audio.NewBuffer(44100, 1, 100)
	for i := range src.Samples {
		src.Samples[i] = 0.5
	}

	audio.MixInto(dst, src, 0.5)
	if math.Abs(dst.Samples[10]-0.25) > 1e-9 {
		t.Fatalf("expected 0.25, got %f", dst.Samples[10])
	}
}

func TestLowPassAttenuatesHighFrequencies(t *testing.T) {
	high := sineBuffer(44100, 44100, 8000, 0.8)
	low := sineBuffer(44100, 44100, 100, 0.8)

	audio.LowPass(high, 500)
	audio.LowPass(low, 500)

	if high.Peak() > low.Peak()/2 {
		t.Fatalf("expected high band attenuated well below low band: high=%f low=%f", high.Peak(), low.Peak())
	}
}

func TestPadToExtendsWithSilence(t *testing.T) {
	b := sineBuffer(44100, 100, 440, 0.5)
	b.PadTo(250)
	if b.Frames() != 250 {
		t.Fatalf("expected 250 frames, got %d", b.Frames())
	}
	for i := 100; i < 250; i++ {
		if b.Samples[i] != 0 {
			t.Fatalf("expected silence in the padding, sample %d = %f", i, b.Samples[i])
		}
	}

	b.PadTo(10)
	if b.Frames() != 250 {
		t.Fatalf("PadTo must never shrink, got %d frames", b.Frames())
	}

	b.TrimTo(120)
	if b.Frames() != 120 {
		t.Fatalf("expected 120 frames after trim, got %d", b.Frames())
	}
	b.TrimTo(500)
	if b.Frames() != 120 {
		t.Fatalf("TrimTo must never grow, got %d frames", b.Frames())
	}
}

func TestResampleKeepsDuration(t *testing.T) {
	b := sineBuffer(44100, 44100, 220, 0.5)
	out := b.Resample(22050)
	if out.SampleRate != 22050 {
		t.Fatalf("expected 22050 Hz, got %d", out.SampleRate)
	}
	if math.Abs(out.Duration().Seconds()-1) > 0.01 {
		t.Fatalf("expected ~1s after resampling, got %f", out.Duration().Seconds())
	}
	if math.Abs(out.Peak()-b.Peak()) > 0.05 {
		t.Fatalf("resampling changed the level: %f vs %f", out.Peak(), b.Peak())
	}
	if same := b.Resample(44100); same != b {
		t.Fatal("matching rate must return the buffer unchanged")
	}
}

func TestStereoConversionRoundTrip(t *testing.T) {
	mono := sineBuffer(44100, 441, 440, 0.5)
	stereo := mono.ToStereo()
	if stereo.Channels != 2 || stereo.Frames() != mono.Frames() {
		t.Fatalf("unexpected stereo geometry: %d channels %d frames", stereo.Channels, stereo.Frames())
	}
	back := stereo.ToMono()
	for i := range mono.Samples {
		if math.Abs(back.Samples[i]-mono.Samples[i]) > 1e-9 {
			t.Fatalf("sample %d drifted through conversion", i)
		}
	}
}
