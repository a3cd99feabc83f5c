//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"sync"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

// LinuxProcess implements the process.Process interface for Linux systems.
//
// The session token is the combination of the ptrace attach state and the
// /proc/[pid]/mem file descriptor. Exactly one LinuxProcess owns a given
// session; Close releases it exactly once.
type LinuxProcess struct {
	pid       process.ProcessID
	mode      process.OpenMode
	log       *logger.Logger
	mm        []memory_map.MemoryMapItem
	mem       *os.File // /proc/[pid]/mem, nil when it could not be opened
	attached  bool     // ptrace attach established
	suspended bool     // target stopped with SIGSTOP (non-attach suspend)

	// suspendCount is the depth of nested Suspend/Resume brackets. Only
	// the 0 to 1 and 1 to 0 transitions touch the target.
	suspendCount int

	mu sync.Mutex

	// All ptrace requests after PTRACE_ATTACH must come from the thread
	// that attached. Requests are funneled through this channel to a
	// dedicated locked OS thread.
	ptraceChan     chan func()
	ptraceDoneChan chan struct{}
}

// New creates a new LinuxProcess instance
func New() process.Process {
	return &LinuxProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
}

// NewWithPID creates a new LinuxProcess instance and opens it with the
// given PID and mode.
func NewWithPID(pid process.ProcessID, mode process.OpenMode) (process.Process, error) {
	p := New()
	if err := p.Open(pid, mode); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) Open(pid process.ProcessID, mode process.OpenMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid != 0 {
		return fmt.Errorf("process %d already open", p.pid)
	}

	// Check if the target exists before touching any debug primitive.
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); os.IsNotExist(err) {
		return process.ErrProcessNotFound
	}

	if mode.AttachRequired {
		p.startPtraceRunner()
		if err := p.attach(pid); err != nil {
			p.stopPtraceRunner()
			return err
		}
	} else if mode.SuspendTarget {
		if err := suspend(pid); err != nil {
			return err
		}
	}

	// The mem file is the second read/write strategy. Opening it can fail
	// on hardened kernels; the session still works through the other
	// strategies, so the error is not fatal.
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
	if err != nil {
		mem = nil
	}

	p.pid = pid
	p.mode = mode
	p.mem = mem
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

// Close releases the session. It is idempotent: the second call returns nil
// without re-invoking detach. Release is attempted even when the target is
// already gone, so OS resources are never leaked.
func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil
	}

	p.log.Infoln("Closing process")
	p.releaseLocked()

	return nil
}

// releaseLocked tears the session down. Callers hold p.mu.
func (p *LinuxProcess) releaseLocked() {
	if p.suspendCount > 0 {
		if !p.attached && !p.suspended {
			if err := resume(p.pid); err != nil {
				p.log.Warn("resume failed:", err)
			}
		}
		p.suspendCount = 0
	}
	if p.attached {
		if err := p.detach(p.pid); err != nil {
			p.log.Warn("detach failed:", err)
		}
		p.attached = false
	}
	if p.suspended {
		if err := resume(p.pid); err != nil {
			p.log.Warn("resume failed:", err)
		}
		p.suspended = false
	}
	if p.ptraceChan != nil {
		p.stopPtraceRunner()
	}
	if p.mem != nil {
		p.mem.Close()
		p.mem = nil
	}

	p.pid = 0
	p.mm = nil
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.ErrNotAttached
	}
	return p.updateMemoryMapLocked()
}

func (p *LinuxProcess) updateMemoryMapLocked() error {
	mm, err := memory_map.NewLinuxMemoryMap().ReadMemoryMap(int(p.pid))
	if err != nil {
		if os.IsNotExist(err) {
			return process.ErrProcessGone
		}
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mm = mm
	return nil
}

func (p *LinuxProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil, process.ErrNotAttached
	}

	// Hand out a copy so the snapshot can never be mutated through the
	// returned slice.
	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)

	return result, nil
}

func (p *LinuxProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.isValidAddressLocked(addr)
}

// isValidAddressLocked checks addr against the current snapshot. Callers
// hold p.mu.
func (p *LinuxProcess) isValidAddressLocked(addr process.ProcessMemoryAddress) bool {
	item := memory_map.FindRegion(uint64(addr), p.mm)
	return item != nil && item.IsReadable()
}

// Suspend stops the target for a bracket of operations that needs a
// consistent image. Brackets nest: a counter tracks the depth and only the
// outermost Suspend stops the target. Targets already stopped for the
// session (attach or SuspendTarget mode) are left alone.
func (p *LinuxProcess) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return process.ErrNotAttached
	}

	p.suspendCount++
	if p.suspendCount > 1 || p.attached || p.suspended {
		return nil
	}
	if err := suspend(p.pid); err != nil {
		p.suspendCount--
		return err
	}
	return nil
}

// Resume undoes one Suspend. Only the outermost Resume continues the
// target.
func (p *LinuxProcess) Resume() error {
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
	return resume(p.pid)
}

// suspend stops the target with SIGSTOP, for sessions that want a paused
// target without the trace machinery.
func suspend(pid process.ProcessID) error {
	if err := unix.Kill(int(pid), unix.SIGSTOP); err != nil {
		return translateErrno(err)
	}
	return nil
}

func resume(pid process.ProcessID) error {
	if err := unix.Kill(int(pid), unix.SIGCONT); err != nil {
		return translateErrno(err)
	}
	return nil
}
