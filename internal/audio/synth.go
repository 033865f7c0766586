package audio

import "math"

// MIDIToFrequency converts a MIDI note number to Hz (A4 = 69 = 440 Hz).
func MIDIToFrequency(note int) float64 {
	return 440.0 * math.Pow(2, float64(note-69)/12.0)
}

// voiceHarmonics approximates a sung vowel: a strong fundamental with a
// handful of decaying overtones.
var voiceHarmonics = []float64{1.0, 0.45, 0.28, 0.14, 0.07}

// RenderVoicedNote synthesizes one note as a harmonic stack shaped by an
// attack/release envelope, writing into dst starting at startFrame.
func RenderVoicedNote(dst *Buffer, startFrame int, frames int, frequency, velocity float64) {
	if dst == nil || frames <= 0 || frequency <= 0 {
		return
	}
	attack := dst.SampleRate / 50 // 20ms
	release := dst.SampleRate / 20
	if release > frames/2 {
		release = frames / 2
	}
	if attack > frames/2 {
		attack = frames / 2
	}

	for i := 0; i < frames; i++ {
		frame := startFrame + i
		if frame >= dst.Frames() {
			break
		}
		t := float64(frame) / float64(dst.SampleRate)

		sample := 0.0
		for h, amp := range voiceHarmonics {
			sample += amp * math.Sin(2*math.Pi*frequency*float64(h+1)*t)
		}

		env := 1.0
		if i < attack && attack > 0 {
			env = float64(i) / float64(attack)
		} else if remaining := frames - i; remaining < release && release > 0 {
			env = float64(remaining) / float64(release)
		}

		// slow vibrato keeps the tone from sounding like an organ
		vibrato := 1 + 0.004*math.Sin(2*math.Pi*5.5*t)

		value := sample * env * velocity * vibrato * 0.2
		for c := 0; c < dst.Channels; c++ {
			dst.Samples[frame*dst.Channels+c] += value
		}
	}
}
