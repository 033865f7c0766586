// Package engines wraps the external processing binaries each pipeline stage
// shells out to, pairing every primary engine with a deterministic built-in
// fallback so a pipeline run can always finish.
package engines

import (
	"context"

	"clovis/internal/artifacts"
	"clovis/internal/melody"
	"clovis/internal/projects"
)

// ProgressFunc reports in-stage completion (0-100) with a short message.
type ProgressFunc func(percent int, message string)

// Request carries everything a stage engine needs to run.
type Request struct {
	Project  *projects.Project
	Layout   artifacts.Layout
	Melody   *melody.Melody // populated for synthesis onward
	Progress ProgressFunc
}

// Report invokes the progress callback when one is set.
func (r Request) Report(percent int, message string) {
	if r.Progress != nil {
		r.Progress(percent, message)
	}
}

// Result describes what an engine produced. File outputs land in the layout;
// analysis additionally returns track metadata here.
type Result struct {
	Engine          string
	DurationSeconds float64
	SampleRate      int
	BPM             float64
	MusicalKey      string
}

// Engine is one processing capability behind a stage. Available is a cheap
// probe; Execute does the work and must respect ctx cancellation.
type Engine interface {
	Name() string
	Available(ctx context.Context) error
	Execute(ctx context.Context, req Request) (*Result, error)
}
