package audio_test

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"clovis/internal/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	src := audio.NewBuffer(44100, 2, 441)
	for i := 0; i < src.Frames(); i++ {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
		src.Samples[i*2] = v
		src.Samples[i*2+1] = -v
	}

	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, src); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	decoded, err := audio.DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if decoded.SampleRate != 44100 || decoded.Channels != 2 {
		t.Fatalf("unexpected geometry: rate=%d channels=%d", decoded.SampleRate, decoded.Channels)
	}
	if decoded.Frames() != src.Frames() {
		t.Fatalf("expected %d frames, got %d", src.Frames(), decoded.Frames())
	}
	for i := range src.Samples {
		if math.Abs(decoded.Samples[i]-src.Samples[i]) > 1.0/32000 {
			t.Fatalf("sample %d drifted: want %f got %f", i, src.Samples[i], decoded.Samples[i])
		}
	}
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	_, err := audio.DecodeWAV(bytes.NewReader([]byte("ID3\x04this is not a wave file at all")))
	if !errors.Is(err, audio.ErrUnsupportedWAV) {
		t.Fatalf("expected unsupported wav error, got %v", err)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	src := audio.NewBuffer(22050, 1, 2205)
	audio.RenderVoicedNote(src, 0, src.Frames(), audio.MIDIToFrequency(60), 0.9)

	if err := audio.WriteWAVFile(path, src); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	loaded, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if loaded.Frames() != src.Frames() {
		t.Fatalf("expected %d frames, got %d", src.Frames(), loaded.Frames())
	}
	if loaded.Peak() == 0 {
		t.Fatal("expected rendered note to be audible")
	}
}
