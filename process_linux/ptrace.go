//go:build linux

package process_linux

import (
	"runtime"
	"time"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// startPtraceRunner spawns the goroutine that executes every ptrace request
// on one locked OS thread. The kernel requires all requests after
// PTRACE_ATTACH to come from the attaching thread.
func (p *LinuxProcess) startPtraceRunner() {
	p.ptraceChan = make(chan func())
	p.ptraceDoneChan = make(chan struct{})
	go p.handlePtraceFuncs()
}

func (p *LinuxProcess) stopPtraceRunner() {
	close(p.ptraceChan)
	p.ptraceChan = nil
	p.ptraceDoneChan = nil
}

func (p *LinuxProcess) handlePtraceFuncs() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for fn := range p.ptraceChan {
		fn()
		p.ptraceDoneChan <- struct{}{}
	}
}

func (p *LinuxProcess) execPtraceFunc(fn func()) {
	p.ptraceChan <- fn
	<-p.ptraceDoneChan
}

// attach establishes the trace relationship and waits for the target to
// reach the stopped state. Issuing a read before the stop is a race: the
// target may not yet be stoppable.
func (p *LinuxProcess) attach(pid process.ProcessID) error {
	var err error
	p.execPtraceFunc(func() {
		err = unix.PtraceAttach(int(pid))
		if err != nil {
			return
		}
		var status unix.WaitStatus
		_, err = unix.Wait4(int(pid), &status, unix.WALL, nil)
	})
	if err != nil {
		return translateAttachError(pid, err)
	}
	return nil
}

// detach releases the trace relationship so the target resumes normal
// execution. A target sometimes re-enters the stopped state shortly after
// detach; check for that and SIGCONT it.
func (p *LinuxProcess) detach(pid process.ProcessID) error {
	var err error
	p.execPtraceFunc(func() {
		err = unix.PtraceDetach(int(pid))
	})
	if err != nil {
		return translateErrno(err)
	}

	time.Sleep(50 * time.Millisecond)
	if s, serr := processState(pid); serr == nil && s == process.ProcessStopped {
		_ = unix.Kill(int(pid), unix.SIGCONT)
	}
	return nil
}

// peekData reads size bytes a machine word at a time with PTRACE_PEEKDATA.
// The slowest strategy, but it works on any traced target and reads
// byte-for-byte up to the region edge.
func (p *LinuxProcess) peekData(pid process.ProcessID, addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	var (
		n   int
		err error
	)
	p.execPtraceFunc(func() {
		n, err = unix.PtracePeekData(int(pid), uintptr(addr), buf)
	})
	if err != nil {
		return n, translateErrno(err)
	}
	return n, nil
}

// pokeData writes data a machine word at a time with PTRACE_POKEDATA. The
// unaligned head and tail words are read first and merged back so bytes
// outside the written span keep their values.
func (p *LinuxProcess) pokeData(pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) (int, error) {
	var (
		n   int
		err error
	)
	p.execPtraceFunc(func() {
		n, err = unix.PtracePokeData(int(pid), uintptr(addr), data)
	})
	if err != nil {
		return n, translateErrno(err)
	}
	return n, nil
}
