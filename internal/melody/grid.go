package melody

import "math"

// DefaultGridBeats is the snap resolution applied after extraction: a
// sixteenth-note grid expressed in beats.
const DefaultGridBeats = 0.25

// SnapToGrid quantizes note starts and durations onto a rhythmic grid. The
// grid cell is gridBeats of the melody's tempo, so at 120 BPM a 0.25-beat
// grid snaps to multiples of 0.125 seconds. Note count is preserved; every
// duration keeps at least one grid cell so no note vanishes.
func SnapToGrid(m *Melody, gridBeats float64) {
	if m == nil || m.BPM <= 0 || gridBeats <= 0 {
		return
	}
	cell := gridBeats * 60.0 / m.BPM

	for i := range m.Notes {
		n := &m.Notes[i]
		n.Start = math.Round(n.Start/cell) * cell
		if n.Start < 0 {
			n.Start = 0
		}
		n.Duration = math.Round(n.Duration/cell) * cell
		if n.Duration < cell {
			n.Duration = cell
		}
	}
	m.Sort()
}

// TrimOverlaps shortens any note that runs past the start of the next one.
// Durations never drop below minDuration seconds.
func TrimOverlaps(m *Melody, minDuration float64) {
	if m == nil {
		return
	}
	m.Sort()
	for i := 0; i < len(m.Notes)-1; i++ {
		n := &m.Notes[i]
		next := m.Notes[i+1]
		if n.End() <= next.Start {
			continue
		}
		trimmed := next.Start - n.Start
		if trimmed < minDuration {
			trimmed = minDuration
		}
		n.Duration = trimmed
	}
}
