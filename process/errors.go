package process

import "errors"

// The error taxonomy shared by every platform backend. Raw OS error codes
// are translated onto these values at the backend boundary and never leak
// upward; callers match them with errors.Is.
var (
	// ErrProcessNotFound is returned by Open when the target pid does not
	// exist at attach time.
	ErrProcessNotFound = errors.New("process not found")

	// ErrPermissionDenied is returned when the caller lacks the privilege
	// required by the operation. Attaching to arbitrary processes commonly
	// requires an elevated capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyTraced is returned when another controller already holds the
	// debug relationship with the target. The OS owns this invariant; the
	// library only surfaces the rejection.
	ErrAlreadyTraced = errors.New("process already traced by another process")

	// ErrProcessGone is returned when the target exited after a session was
	// established. Distinct from ErrPermissionDenied so callers can decide
	// whether to re-attach or abandon.
	ErrProcessGone = errors.New("target process is gone")

	// ErrAddressOutOfRange is returned when an address or length refers to
	// unmapped or otherwise invalid memory.
	ErrAddressOutOfRange = errors.New("address out of range")

	// ErrNotAttached is returned when an operation requires a session that
	// was never established or has already been released.
	ErrNotAttached = errors.New("process not attached")

	// ErrInvalidPointer is returned by the typed read helpers when a
	// pointer value read from the target is null or unmapped.
	ErrInvalidPointer = errors.New("invalid pointer read")
)
