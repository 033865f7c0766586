package engines

import (
	"math"

	"clovis/internal/audio"
)

const (
	defaultBPM = 120.0
	defaultKey = "C major"

	minBPM = 60.0
	maxBPM = 180.0
)

// estimateBPM finds the dominant tempo by autocorrelating the onset energy
// envelope. The search is bounded to 60-180 BPM; an inconclusive envelope
// returns the neutral default.
func estimateBPM(buf *audio.Buffer) float64 {
	mono := buf.ToMono()
	if mono.SampleRate <= 0 || mono.Frames() == 0 {
		return defaultBPM
	}

	// energy envelope at ~100 Hz resolution
	hop := mono.SampleRate / 100
	if hop < 1 {
		hop = 1
	}
	var envelope []float64
	for start := 0; start+hop <= len(mono.Samples); start += hop {
		sum := 0.0
		for _, s := range mono.Samples[start : start+hop] {
			sum += s * s
		}
		envelope = append(envelope, sum/float64(hop))
	}
	if len(envelope) < 8 {
		return defaultBPM
	}

	// onset strength: positive energy flux
	flux := make([]float64, len(envelope)-1)
	for i := 1; i < len(envelope); i++ {
		if d := envelope[i] - envelope[i-1]; d > 0 {
			flux[i-1] = d
		}
	}

	envRate := float64(mono.SampleRate) / float64(hop)
	minLag := int(envRate * 60 / maxBPM)
	maxLag := int(envRate * 60 / minBPM)
	if maxLag >= len(flux) {
		maxLag = len(flux) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return defaultBPM
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		score := 0.0
		for i := 0; i+lag < len(flux); i++ {
			score += flux[i] * flux[i+lag]
		}
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	if bestLag == 0 || bestScore == 0 {
		return defaultBPM
	}
	bpm := envRate * 60 / float64(bestLag)
	return math.Round(bpm*10) / 10
}

var pitchClassNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// major and minor key profiles (Krumhansl-Schmuckler weights).
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// estimateKey builds a chroma histogram with Goertzel detectors over four
// octaves and correlates it against major/minor key profiles.
func estimateKey(buf *audio.Buffer) string {
	mono := buf.ToMono()
	if mono.SampleRate <= 0 || mono.Frames() == 0 {
		return defaultKey
	}

	// analyze up to 30 seconds from the front
	samples := mono.Samples
	if limit := mono.SampleRate * 30; len(samples) > limit {
		samples = samples[:limit]
	}

	chroma := make([]float64, 12)
	for midi := 36; midi < 84; midi++ { // C2..B5
		freq := audio.MIDIToFrequency(midi)
		if freq >= float64(mono.SampleRate)/2 {
			break
		}
		power := goertzel(samples, mono.SampleRate, freq)
		chroma[midi%12] += power
	}

	total := 0.0
	for _, c := range chroma {
		total += c
	}
	if total == 0 {
		return defaultKey
	}

	bestKey, bestScore := defaultKey, math.Inf(-1)
	for tonic := 0; tonic < 12; tonic++ {
		if score := profileCorrelation(chroma, majorProfile, tonic); score > bestScore {
			bestScore = score
			bestKey = pitchClassNames[tonic] + " major"
		}
		if score := profileCorrelation(chroma, minorProfile, tonic); score > bestScore {
			bestScore = score
			bestKey = pitchClassNames[tonic] + " minor"
		}
	}
	return bestKey
}

func profileCorrelation(chroma, profile []float64, tonic int) float64 {
	score := 0.0
	for i := 0; i < 12; i++ {
		score += chroma[(tonic+i)%12] * profile[i]
	}
	return score
}

// goertzel measures signal power at a single frequency.
func goertzel(samples []float64, sampleRate int, freq float64) float64 {
	omega := 2 * math.Pi * freq / float64(sampleRate)
	coeff := 2 * math.Cos(omega)
	var s0, s1, s2 float64
	for _, x := range samples {
		s0 = x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}
