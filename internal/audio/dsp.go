package audio

import "math"

// DBToGain converts decibels to a linear gain factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// ApplyGain scales every sample in place.
func ApplyGain(b *Buffer, gain float64) {
	for i := range b.Samples {
		b.Samples[i] *= gain
	}
}

// Normalize scales the buffer so its peak hits the target level. Silent
// buffers are left untouched.
func Normalize(b *Buffer, target float64) {
	peak := b.Peak()
	if peak == 0 {
		return
	}
	ApplyGain(b, target/peak)
}

// MixInto adds src into dst sample by sample at the given gain. The shorter
// buffer bounds the mix; geometry must match.
func MixInto(dst, src *Buffer, gain float64) {
	n := len(dst.Samples)
	if len(src.Samples) < n {
		n = len(src.Samples)
	}
	for i := 0; i < n; i++ {
		dst.Samples[i] += src.Samples[i] * gain
	}
}

// Compress applies soft-knee downward compression above the threshold
// (linear, not dB). Ratio 1 is a no-op.
func Compress(b *Buffer, threshold, ratio float64) {
	if ratio <= 1 || threshold <= 0 {
		return
	}
	for i, s := range b.Samples {
		a := math.Abs(s)
		if a <= threshold {
			continue
		}
		compressed := threshold + (a-threshold)/ratio
		if s < 0 {
			compressed = -compressed
		}
		b.Samples[i] = compressed
	}
}

// Limit soft-clips the buffer with tanh so the output never exceeds ceiling.
func Limit(b *Buffer, ceiling float64) {
	if ceiling <= 0 {
		return
	}
	for i, s := range b.Samples {
		b.Samples[i] = ceiling * math.Tanh(s/ceiling)
	}
}

// LowPass runs a one-pole low-pass filter per channel. cutoff is in Hz.
func LowPass(b *Buffer, cutoff float64) {
	if cutoff <= 0 || b.SampleRate <= 0 {
		return
	}
	rc := 1.0 / (2 * math.Pi * cutoff)
	dt := 1.0 / float64(b.SampleRate)
	alpha := dt / (rc + dt)

	state := make([]float64, b.Channels)
	for i := 0; i < b.Frames(); i++ {
		for c := 0; c < b.Channels; c++ {
			idx := i*b.Channels + c
			state[c] += alpha * (b.Samples[idx] - state[c])
			b.Samples[idx] = state[c]
		}
	}
}

// HighPass runs a one-pole high-pass filter per channel. cutoff is in Hz.
func HighPass(b *Buffer, cutoff float64) {
	if cutoff <= 0 || b.SampleRate <= 0 {
		return
	}
	rc := 1.0 / (2 * math.Pi * cutoff)
	dt := 1.0 / float64(b.SampleRate)
	alpha := rc / (rc + dt)

	prevIn := make([]float64, b.Channels)
	prevOut := make([]float64, b.Channels)
	for i := 0; i < b.Frames(); i++ {
		for c := 0; c < b.Channels; c++ {
			idx := i*b.Channels + c
			in := b.Samples[idx]
			out := alpha * (prevOut[c] + in - prevIn[c])
			prevIn[c] = in
			prevOut[c] = out
			b.Samples[idx] = out
		}
	}
}

// Reverb adds a simple feedback-delay wet signal. wet is the send level
// (0 disables), decay the feedback amount, delaySeconds the comb length.
func Reverb(b *Buffer, wet, decay, delaySeconds float64) {
	if wet <= 0 || b.SampleRate <= 0 {
		return
	}
	delayFrames := int(delaySeconds * float64(b.SampleRate))
	if delayFrames < 1 {
		return
	}
	if decay > 0.95 {
		decay = 0.95
	}

	tail := make([]float64, delayFrames*b.Channels)
	for i := range b.Samples {
		tapIdx := i % len(tail)
		echo := tail[tapIdx]
		tail[tapIdx] = b.Samples[i] + echo*decay
		b.Samples[i] += echo * wet
	}
}
