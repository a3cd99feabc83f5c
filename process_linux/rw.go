//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"

	"golang.org/x/sys/unix"
)

// The read and write paths are ordered strategy chains: the vectorized
// process_vm syscall first, the /proc/[pid]/mem file second, the per-word
// ptrace peek/poke last. The first strategy to succeed wins. Strategies
// only fall through on availability failures (missing syscall, missing
// permission, missing attach); a fault from the target's address space is
// authoritative and stops the chain.

type readStrategy struct {
	name string
	read func(p *LinuxProcess, addr process.ProcessMemoryAddress, buf []byte) (int, error)
}

type writeStrategy struct {
	name  string
	write func(p *LinuxProcess, addr process.ProcessMemoryAddress, data []byte) (int, error)
}

var readStrategies = []readStrategy{
	{"process_vm_readv", (*LinuxProcess).readProcessVM},
	{"proc_mem", (*LinuxProcess).readProcMem},
	{"ptrace_peek", (*LinuxProcess).readPtrace},
}

var writeStrategies = []writeStrategy{
	{"process_vm_writev", (*LinuxProcess).writeProcessVM},
	{"proc_mem", (*LinuxProcess).writeProcMem},
	{"ptrace_poke", (*LinuxProcess).writePtrace},
}

// errStrategyUnavailable marks a strategy that cannot serve this session;
// the chain moves on to the next one.
var errStrategyUnavailable = errors.New("strategy unavailable")

// ReadMemory reads memory from the process at the specified address.
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
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

	p.mu.Unlock()

	buf := make([]byte, size)
	var lastErr error
	for _, s := range readStrategies {
		n, err := s.read(p, addr, buf)
		if errors.Is(err, errStrategyUnavailable) {
			continue
		}
		if errors.Is(err, process.ErrPermissionDenied) {
			// Not permitted through this mechanism; another may be.
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		if n != len(buf) {
			// A short vectorized read means part of the span is not
			// accessible. The contract is all-or-nothing.
			return nil, process.ErrAddressOutOfRange
		}
		return buf, nil
	}

	if lastErr == nil {
		lastErr = process.ErrPermissionDenied
	}
	return nil, fmt.Errorf("all read strategies failed: %w", lastErr)
}

// WriteMemory writes data to the process memory at the specified address.
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
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
	p.mu.Unlock()

	if !writable {
		return process.ErrPermissionDenied
	}

	// Copy so the caller's slice cannot change mid-write.
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	var lastErr error
	for _, s := range writeStrategies {
		n, err := s.write(p, addr, dataCopy)
		if errors.Is(err, errStrategyUnavailable) {
			continue
		}
		if errors.Is(err, process.ErrPermissionDenied) {
			lastErr = err
			continue
		}
		if err != nil {
			return err
		}
		if n != len(dataCopy) {
			return fmt.Errorf("%s: only wrote %d of %d bytes", s.name, n, len(dataCopy))
		}
		return nil
	}

	if lastErr == nil {
		lastErr = process.ErrPermissionDenied
	}
	return fmt.Errorf("all write strategies failed: %w", lastErr)
}

// readProcessVM copies the span with a single process_vm_readv syscall.
func (p *LinuxProcess) readProcessVM(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	n, err := processVMReadv(p.pid, addr, buf)
	if err != nil {
		var errno unix.Errno
		if errors.As(err, &errno) && errno == unix.ENOSYS {
			return 0, errStrategyUnavailable
		}
		return 0, translateErrno(err)
	}
	return n, nil
}

func (p *LinuxProcess) writeProcessVM(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	n, err := processVMWritev(p.pid, addr, data)
	if err != nil {
		var errno unix.Errno
		if errors.As(err, &errno) && errno == unix.ENOSYS {
			return 0, errStrategyUnavailable
		}
		return 0, translateErrno(err)
	}
	return n, nil
}

// readProcMem reads through the /proc/[pid]/mem file descriptor.
func (p *LinuxProcess) readProcMem(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	if p.mem == nil {
		return 0, errStrategyUnavailable
	}
	n, err := p.mem.ReadAt(buf, int64(addr))
	if err != nil {
		return n, translateErrno(err)
	}
	return n, nil
}

func (p *LinuxProcess) writeProcMem(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	if p.mem == nil {
		return 0, errStrategyUnavailable
	}
	n, err := p.mem.WriteAt(data, int64(addr))
	if err != nil {
		return n, translateErrno(err)
	}
	return n, nil
}

// readPtrace falls back to word-granularity PTRACE_PEEKDATA. Requires the
// trace relationship, so it only serves attach sessions.
func (p *LinuxProcess) readPtrace(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	if !p.attached {
		return 0, errStrategyUnavailable
	}
	return p.peekData(p.pid, addr, buf)
}

func (p *LinuxProcess) writePtrace(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	if !p.attached {
		return 0, errStrategyUnavailable
	}
	return p.pokeData(p.pid, addr, data)
}

// processVMReadv uses the process_vm_readv syscall to read memory from
// another process in one bulk copy.
func processVMReadv(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, localBuf []byte) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// processVMWritev uses the process_vm_writev syscall to write memory to
// another process in one bulk copy.
func processVMWritev(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, localBuf []byte) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}
