package progress

import "time"

// StageWeight assigns one stage its share of the overall percentage.
type StageWeight struct {
	Step   string
	Weight int
}

// Tracker folds in-stage percentages into an overall completion figure and a
// linear wall-clock estimate of the time remaining.
type Tracker struct {
	weights []StageWeight
	total   int
	started time.Time
}

// NewTracker starts tracking a run over the given stage weights.
func NewTracker(weights []StageWeight, started time.Time) *Tracker {
	total := 0
	for _, w := range weights {
		total += w.Weight
	}
	if total <= 0 {
		total = 1
	}
	return &Tracker{weights: weights, total: total, started: started}
}

// Overall converts a stage plus its in-stage percentage (0-100) into the
// overall pipeline percentage. Stages ahead of the current one count as
// complete; stages behind count as zero.
func (t *Tracker) Overall(step string, stagePercent int) int {
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}

	done := 0
	for _, w := range t.weights {
		if w.Step == step {
			done += w.Weight * stagePercent / 100
			break
		}
		done += w.Weight
	}
	overall := done * 100 / t.total
	if overall > 100 {
		overall = 100
	}
	return overall
}

// Estimate returns elapsed seconds and a remaining-time projection assuming
// the observed rate holds. Before any measurable progress the ETA is zero.
func (t *Tracker) Estimate(overall int, now time.Time) (elapsed, eta float64) {
	elapsed = now.Sub(t.started).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if overall <= 0 || overall >= 100 {
		return elapsed, 0
	}
	eta = elapsed * float64(100-overall) / float64(overall)
	return elapsed, eta
}
