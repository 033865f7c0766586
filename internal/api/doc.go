// Package api contains the service layer shared by the HTTP server and the
// CLI. Services translate between the persistence layer and transport-friendly
// DTOs, and own the start/enqueue handshake for pipeline runs.
package api
