// Package audio provides the small PCM toolbox the deterministic fallback
// engines render with: a WAV codec, oscillators, envelopes, and the gain,
// compression, and reverb primitives the mix stage applies.
package audio

import (
	"math"
	"time"
)

// Buffer holds interleaved PCM samples in the -1..1 range.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float64
}

// NewBuffer allocates a silent buffer with the given geometry.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    make([]float64, frames*channels),
	}
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the play time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	cp := &Buffer{SampleRate: b.SampleRate, Channels: b.Channels, Samples: make([]float64, len(b.Samples))}
	copy(cp.Samples, b.Samples)
	return cp
}

// ToStereo returns a two-channel view of the buffer. Mono input is duplicated
// onto both channels; stereo input is returned unchanged.
func (b *Buffer) ToStereo() *Buffer {
	if b.Channels == 2 {
		return b
	}
	out := NewBuffer(b.SampleRate, 2, b.Frames())
	for i := 0; i < b.Frames(); i++ {
		s := b.Samples[i*b.Channels]
		out.Samples[i*2] = s
		out.Samples[i*2+1] = s
	}
	return out
}

// PadTo extends the buffer with silence until it holds at least frames
// sample frames. Longer buffers are left unchanged.
func (b *Buffer) PadTo(frames int) {
	want := frames * b.Channels
	if want <= len(b.Samples) {
		return
	}
	padded := make([]float64, want)
	copy(padded, b.Samples)
	b.Samples = padded
}

// TrimTo drops frames beyond the given count. Shorter buffers are left
// unchanged.
func (b *Buffer) TrimTo(frames int) {
	want := frames * b.Channels
	if want < 0 || want >= len(b.Samples) {
		return
	}
	b.Samples = b.Samples[:want]
}

// Resample returns the buffer converted to the target sample rate with
// linear interpolation. A matching rate returns the buffer unchanged.
func (b *Buffer) Resample(rate int) *Buffer {
	if rate <= 0 || b.SampleRate <= 0 || rate == b.SampleRate {
		return b
	}
	srcFrames := b.Frames()
	dstFrames := int(math.Round(float64(srcFrames) * float64(rate) / float64(b.SampleRate)))
	out := NewBuffer(rate, b.Channels, dstFrames)
	step := float64(b.SampleRate) / float64(rate)
	for i := 0; i < dstFrames; i++ {
		pos := float64(i) * step
		lo := int(pos)
		if lo > srcFrames-1 {
			lo = srcFrames - 1
		}
		frac := pos - float64(lo)
		if frac < 0 {
			frac = 0
		}
		hi := lo + 1
		if hi > srcFrames-1 {
			hi = srcFrames - 1
		}
		for c := 0; c < b.Channels; c++ {
			a := b.Samples[lo*b.Channels+c]
			z := b.Samples[hi*b.Channels+c]
			out.Samples[i*b.Channels+c] = a + (z-a)*frac
		}
	}
	return out
}

// ToMono returns a single-channel view, averaging across channels.
func (b *Buffer) ToMono() *Buffer {
	if b.Channels == 1 {
		return b
	}
	out := NewBuffer(b.SampleRate, 1, b.Frames())
	for i := 0; i < b.Frames(); i++ {
		sum := 0.0
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[i*b.Channels+c]
		}
		out.Samples[i] = sum / float64(b.Channels)
	}
	return out
}
