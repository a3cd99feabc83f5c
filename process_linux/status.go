//go:build linux

package process_linux

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// translateErrno maps raw OS error codes onto the unified taxonomy. This is
// the only place errnos cross the backend boundary.
func translateErrno(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}

	switch errno {
	case unix.ESRCH:
		return process.ErrProcessGone
	case unix.EPERM, unix.EACCES:
		return process.ErrPermissionDenied
	case unix.EFAULT, unix.EIO:
		return process.ErrAddressOutOfRange
	default:
		return fmt.Errorf("errno %d: %w", int(errno), err)
	}
}

// translateAttachError resolves the EPERM ambiguity of PTRACE_ATTACH: the
// kernel reports both a privilege failure and a second attach to an
// already-traced target as EPERM. TracerPid in /proc/[pid]/status tells the
// two apart.
func translateAttachError(pid process.ProcessID, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}

	switch errno {
	case unix.ESRCH:
		return process.ErrProcessNotFound
	case unix.EPERM, unix.EACCES:
		if tracer, terr := tracerPID(pid); terr == nil && tracer != 0 {
			return process.ErrAlreadyTraced
		}
		return process.ErrPermissionDenied
	default:
		return fmt.Errorf("ptrace attach: errno %d: %w", int(errno), err)
	}
}

// tracerPID returns the pid of the process currently tracing the target,
// or 0 when it is not traced.
func tracerPID(pid process.ProcessID) (int, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "TracerPid:") {
			continue
		}
		return strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "TracerPid:")))
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no TracerPid line in /proc/%d/status", pid)
}

// processState returns the scheduler state character of the target.
func processState(pid process.ProcessID) (process.ProcessState, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "State:") {
			continue
		}
		state := strings.TrimSpace(strings.TrimPrefix(line, "State:"))
		if state == "" {
			break
		}
		return process.ProcessState(state[:1]), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no State line in /proc/%d/status", pid)
}
