// Package projects owns the durable project record backing the pipeline
// state machine. The persisted status doubles as the per-project pipeline
// lock: transitions into a processing status happen through a single
// compare-and-swap statement, so two workers can never run the same
// project concurrently.
package projects
