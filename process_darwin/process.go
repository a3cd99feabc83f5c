//go:build darwin && cgo

// Package process_darwin implements the process.Process interface on macOS
// using the mach task APIs. A pure read/write session only acquires the
// task port and never stops the target; trace-level control additionally
// attaches with ptrace and waits for the stop.
package process_darwin

/*
#include <errno.h>
#include <mach/mach.h>
#include <mach/mach_vm.h>
#include <sys/ptrace.h>
#include <sys/wait.h>
#include <unistd.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

// DarwinProcess implements the process.Process interface for macOS. The
// session token is the mach task port (plus the ptrace attach state when
// trace control was requested).
type DarwinProcess struct {
	pid       process.ProcessID
	mode      process.OpenMode
	log       *logger.Logger
	mm        []memory_map.MemoryMapItem
	task      C.mach_port_name_t
	attached  bool
	suspended bool

	// suspendCount is the depth of nested Suspend/Resume brackets. Only
	// the 0 to 1 and 1 to 0 transitions touch the task.
	suspendCount int

	mu sync.Mutex
}

// New creates a new DarwinProcess instance
func New() process.Process {
	return &DarwinProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
}

// NewWithPID creates a new DarwinProcess instance and opens it with the
// given PID and mode.
func NewWithPID(pid process.ProcessID, mode process.OpenMode) (process.Process, error) {
	p := New()
	if err := p.Open(pid, mode); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *DarwinProcess) Open(pid process.ProcessID, mode process.OpenMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid != 0 {
		return fmt.Errorf("process %d already open", p.pid)
	}

	if err := unix.Kill(int(pid), 0); err != nil {
		if err == unix.ESRCH {
			return process.ErrProcessNotFound
		}
		// EPERM from kill(0) still means the pid exists.
	}

	// task_for_pid is the session token for all memory access. It needs
	// the debugger entitlement or root; failure here is a privilege
	// problem, not a liveness one (liveness was checked above).
	var task C.mach_port_name_t
	if kret := C.task_for_pid(C.mach_port_name_t(C.mach_task_self_), C.int(pid), &task); kret != C.KERN_SUCCESS {
		return process.ErrPermissionDenied
	}

	if mode.AttachRequired {
		// PT_ATTACHEXC turns Unix signals into mach exceptions and stops
		// the target, which full control semantics require.
		if ret, err := C.ptrace(C.PT_ATTACHEXC, C.int(pid), nil, 0); ret < 0 {
			C.mach_port_deallocate(C.mach_task_self_, C.mach_port_t(task))
			if errno, ok := err.(unix.Errno); ok {
				return translateAttachErrno(errno)
			}
			return fmt.Errorf("ptrace attach: %v", err)
		}
		var status C.int
		C.waitpid(C.int(pid), &status, C.WUNTRACED)
	} else if mode.SuspendTarget {
		if kret := C.task_suspend(C.task_t(task)); kret != C.KERN_SUCCESS {
			C.mach_port_deallocate(C.mach_task_self_, C.mach_port_t(task))
			return fmt.Errorf("task_suspend failed: kern return %d", int(kret))
		}
	}

	p.pid = pid
	p.mode = mode
	p.task = task
	p.attached = mode.AttachRequired
	p.suspended = !mode.AttachRequired && mode.SuspendTarget
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))

	if err := p.updateMemoryMapLocked(); err != nil {
		p.releaseLocked()
		return fmt.Errorf("failed to initialize memory map: %w", err)
	}

	p.log.Infoln("Process opened")

	return nil
}

// Close releases the session: detaches, resumes a suspended target and
// drops the task port. Idempotent; the second call returns nil.
func (p *DarwinProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil
	}

	p.log.Infoln("Closing process")
	p.releaseLocked()

	return nil
}

// Suspend stops the target for a bracket of operations that needs a
// consistent image. Brackets nest; only the outermost Suspend suspends the
// task. Targets already stopped for the session are left alone.
func (p *DarwinProcess) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.ErrNotAttached
	}

	p.suspendCount++
	if p.suspendCount > 1 || p.attached || p.suspended {
		return nil
	}
	if kret := C.task_suspend(C.task_t(p.task)); kret != C.KERN_SUCCESS {
		p.suspendCount--
		return p.translateKernReturn(kret)
	}
	return nil
}

// Resume undoes one Suspend. Only the outermost Resume resumes the task.
func (p *DarwinProcess) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.ErrNotAttached
	}
	if p.suspendCount == 0 {
		return fmt.Errorf("resume without matching suspend")
	}

	p.suspendCount--
	if p.suspendCount > 0 || p.attached || p.suspended {
		return nil
	}
	if kret := C.task_resume(C.task_t(p.task)); kret != C.KERN_SUCCESS {
		return p.translateKernReturn(kret)
	}
	return nil
}

func (p *DarwinProcess) releaseLocked() {
	if p.suspendCount > 0 {
		if !p.attached && !p.suspended {
			if kret := C.task_resume(C.task_t(p.task)); kret != C.KERN_SUCCESS {
				p.log.Warn("task_resume failed: kern return", int(kret))
			}
		}
		p.suspendCount = 0
	}
	if p.attached {
		if ret, err := C.ptrace(C.PT_DETACH, C.int(p.pid), nil, 0); ret < 0 {
			p.log.Warn("detach failed:", err)
		}
		p.attached = false
	}
	if p.suspended {
		if kret := C.task_resume(C.task_t(p.task)); kret != C.KERN_SUCCESS {
			p.log.Warn("task_resume failed: kern return", int(kret))
		}
		p.suspended = false
	}
	if p.task != 0 {
		C.mach_port_deallocate(C.mach_task_self_, C.mach_port_t(p.task))
		p.task = 0
	}

	p.pid = 0
	p.mm = nil
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
}

// GetPID returns the process ID
func (p *DarwinProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *DarwinProcess) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.ErrNotAttached
	}
	return p.updateMemoryMapLocked()
}

func (p *DarwinProcess) updateMemoryMapLocked() error {
	mm, err := memory_map.NewDarwinMemoryMap().ReadMemoryMapTask(uint32(p.task))
	if err != nil {
		if !p.taskAlive() {
			return process.ErrProcessGone
		}
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mm = mm
	return nil
}

func (p *DarwinProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil, process.ErrNotAttached
	}

	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)

	return result, nil
}

func (p *DarwinProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	item := memory_map.FindRegion(uint64(addr), p.mm)
	return item != nil && item.IsReadable()
}

// ReadMemory reads memory with a single mach_vm_read_overwrite call; the
// kernel copies the whole span or fails it whole.
func (p *DarwinProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()

	if p.pid == 0 {
		p.mu.Unlock()
		return nil, process.ErrNotAttached
	}
	if size == 0 {
		p.mu.Unlock()
		return []byte{}, nil
	}
	if !memory_map.SpanMapped(uint64(addr), uint(size), p.mm) {
		p.mu.Unlock()
		return nil, process.ErrAddressOutOfRange
	}
	task := p.task
	p.mu.Unlock()

	buf := make([]byte, size)
	var readLen C.mach_vm_size_t
	kret := C.mach_vm_read_overwrite(
		C.vm_map_t(task),
		C.mach_vm_address_t(addr),
		C.mach_vm_size_t(size),
		C.mach_vm_address_t(uintptr(unsafe.Pointer(&buf[0]))),
		&readLen,
	)
	if kret != C.KERN_SUCCESS {
		return nil, p.translateKernReturn(kret)
	}
	if uint(readLen) != uint(size) {
		return nil, process.ErrAddressOutOfRange
	}

	return buf, nil
}

// WriteMemory writes data with a single mach_vm_write call. Bytes outside
// the span are untouched.
func (p *DarwinProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()

	if p.pid == 0 {
		p.mu.Unlock()
		return process.ErrNotAttached
	}
	if len(data) == 0 {
		p.mu.Unlock()
		return nil
	}

	region := memory_map.FindRegion(uint64(addr), p.mm)
	if region == nil || uint64(addr)+uint64(len(data)) > region.End() {
		p.mu.Unlock()
		return process.ErrAddressOutOfRange
	}
	writable := region.IsWritable()
	task := p.task
	p.mu.Unlock()

	if !writable {
		return process.ErrPermissionDenied
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	kret := C.mach_vm_write(
		C.vm_map_t(task),
		C.mach_vm_address_t(addr),
		C.vm_offset_t(uintptr(unsafe.Pointer(&dataCopy[0]))),
		C.mach_msg_type_number_t(len(dataCopy)),
	)
	if kret != C.KERN_SUCCESS {
		return p.translateKernReturn(kret)
	}

	return nil
}

// taskAlive asks the kernel whether the task behind the port still maps to
// the pid we opened. A dead target invalidates the port mapping.
func (p *DarwinProcess) taskAlive() bool {
	var pid C.int
	if kret := C.pid_for_task(C.mach_port_name_t(p.task), &pid); kret != C.KERN_SUCCESS {
		return false
	}
	return process.ProcessID(pid) == p.pid
}

// translateKernReturn maps mach kern_return_t codes onto the unified
// taxonomy, consulting target liveness for the ambiguous failure codes.
func (p *DarwinProcess) translateKernReturn(kret C.kern_return_t) error {
	if !p.taskAlive() {
		return process.ErrProcessGone
	}
	switch kret {
	case C.KERN_INVALID_ADDRESS, C.KERN_MEMORY_ERROR, C.KERN_MEMORY_FAILURE:
		return process.ErrAddressOutOfRange
	case C.KERN_PROTECTION_FAILURE, C.KERN_NO_ACCESS:
		return process.ErrPermissionDenied
	default:
		return fmt.Errorf("mach call failed: kern return %d", int(kret))
	}
}

// translateAttachErrno resolves ptrace attach failures. EBUSY is the mach
// kernel's way of rejecting a second tracer.
func translateAttachErrno(errno unix.Errno) error {
	switch errno {
	case unix.ESRCH:
		return process.ErrProcessNotFound
	case unix.EBUSY:
		return process.ErrAlreadyTraced
	case unix.EPERM, unix.EACCES:
		return process.ErrPermissionDenied
	default:
		return fmt.Errorf("ptrace attach: errno %d", int(errno))
	}
}
