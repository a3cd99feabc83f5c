package process

import (
	"procmem/process/memory_map"
)

// Process is the interface that defines operations for interacting with a
// system process. It is the only sanctioned entry point: callers never talk
// to a platform backend directly.
//
// A Process owns exactly one backend session. Its methods serialize access
// to the handle's own state, but the underlying debug session must not be
// driven from two goroutines at once without external synchronization; the
// OS trace primitives accept a single controller.
type Process interface {
	// Open establishes a session with the given PID. Returns
	// ErrProcessNotFound, ErrPermissionDenied or ErrAlreadyTraced.
	Open(pid ProcessID, mode OpenMode) error

	// Close releases the session: detaches the trace relationship (if one
	// was established), resumes a suspended target and closes any OS
	// resources. Close is idempotent; the second call returns nil without
	// re-invoking detach. Release happens even after a prior operation
	// failed with ErrProcessGone.
	Close() error

	// GetPID returns the process ID, or 0 when no session is open.
	GetPID() ProcessID

	// UpdateMemoryMap takes a fresh enumeration snapshot of the target's
	// virtual memory layout.
	UpdateMemoryMap() error

	// GetMemoryMap returns a copy of the current snapshot, sorted ascending
	// by base address with pairwise-disjoint regions.
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// IsValidAddress checks if the given address falls inside a readable
	// region of the current snapshot.
	IsValidAddress(addr ProcessMemoryAddress) bool

	// ReadMemory reads size bytes from the target at addr. A size of zero
	// returns an empty slice. A span that leaves mapped memory fails whole
	// with ErrAddressOutOfRange; partial data is never returned.
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the target at addr. Bytes outside the
	// written span are preserved exactly.
	WriteMemory(addr ProcessMemoryAddress, data []byte) error
}
