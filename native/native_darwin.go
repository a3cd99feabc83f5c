//go:build darwin && cgo

// Package native selects the platform backend at build time. Callers open
// sessions through this package and only ever see the process.Process
// contract; the backend variant is never chosen at the call site.
package native

import (
	"procmem/process"
	"procmem/process_darwin"
)

// New creates an unopened handle for the build platform.
func New() process.Process {
	return process_darwin.New()
}

// Open creates a handle and establishes a session with the given PID.
func Open(pid process.ProcessID, mode process.OpenMode) (process.Process, error) {
	return process_darwin.NewWithPID(pid, mode)
}
