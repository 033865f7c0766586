// Package logging builds the slog loggers used by the daemon and CLI and
// provides the standardized attribute keys shared across components.
package logging
