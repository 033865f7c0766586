package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks missing or invalid prerequisite input. The
	// pipeline never starts; the project itself is left untouched.
	ErrValidation = errors.New("validation error")
	// ErrConcurrency marks a start request while a pipeline is already
	// active for the project. Rejected synchronously.
	ErrConcurrency = errors.New("pipeline already running")
	// ErrEngineUnavailable marks a primary engine whose prerequisites
	// are missing. Handled inside the adapter by falling back.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrTransient marks a retryable engine failure.
	ErrTransient = errors.New("transient failure")
	// ErrProcessing marks an irrecoverable stage failure. Fatal to the
	// pipeline run.
	ErrProcessing = errors.New("processing error")
	// ErrTimeout marks a stage that exceeded its wall-clock bound.
	// Treated as a processing failure.
	ErrTimeout = errors.New("timeout")
	// ErrConfiguration marks broken wiring (nil store, missing config).
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing project or artifact.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error should halt the pipeline run. Transient
// and availability failures are resolved inside the engine adapters and never
// count as fatal on their own.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTransient), errors.Is(err, ErrEngineUnavailable):
		return false
	default:
		return true
	}
}

// UserMessage extracts the human-readable portion of a stage error for
// persistence in the project's error_message field. Sentinel prefixes are
// stripped so internal markers never leak to users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrValidation, ErrConcurrency, ErrEngineUnavailable,
		ErrTransient, ErrProcessing, ErrTimeout, ErrConfiguration, ErrNotFound,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
			break
		}
	}
	return strings.TrimSpace(msg)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
