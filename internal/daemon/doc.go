// Package daemon hosts the long-running clovis process: the worker pool that
// executes pipeline runs, the HTTP API, and the WebSocket progress feed. A
// file lock enforces single-instance execution per data directory.
package daemon
