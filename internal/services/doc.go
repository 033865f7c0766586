// Package services defines the shared error taxonomy and context
// annotations used across pipeline stages and the API surface.
package services
