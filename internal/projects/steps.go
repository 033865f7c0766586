package projects

import "strings"

// ArtifactSet reports which stage outputs exist on disk for a project. The
// store never persists artifact paths; presence is checked at read time so
// the step report always reflects reality.
type ArtifactSet struct {
	Instrumental  bool
	Melody        bool
	RawVocals     bool
	RefinedVocals bool
	FinalMix      bool
}

// StepStatuses derives the availability and completion of every pipeline step
// from the project record and the artifacts present on disk. A step becomes
// available once everything it consumes exists; it is completed once its own
// output exists.
func StepStatuses(p *Project, files ArtifactSet) map[Step]StepStatus {
	hasLyrics := p != nil && strings.TrimSpace(p.Lyrics) != ""
	analyzed := p != nil && p.DurationSeconds > 0 && p.BPM > 0

	statuses := map[Step]StepStatus{
		StepUpload: {
			Available: true,
			Completed: files.Instrumental,
		},
		StepAnalysis: {
			Available: files.Instrumental,
			Completed: analyzed,
		},
		StepMelody: {
			Available: analyzed && hasLyrics,
			Completed: files.Melody,
		},
		StepSynthesis: {
			Available: files.Melody,
			Completed: files.RawVocals,
		},
		StepRefinement: {
			Available: files.RawVocals,
			Completed: files.RefinedVocals,
		},
		StepMix: {
			Available: files.RefinedVocals,
			Completed: files.FinalMix,
		},
	}
	return statuses
}

// NextPendingStep returns the first processing stage whose output is missing,
// honoring the fixed pipeline order. Resuming a failed pipeline starts here
// instead of repeating completed stages. The second return is false when every
// stage already completed.
func NextPendingStep(p *Project, files ArtifactSet) (Step, bool) {
	statuses := StepStatuses(p, files)
	for _, step := range PipelineOrder {
		if !statuses[step].Completed {
			return step, true
		}
	}
	return "", false
}
