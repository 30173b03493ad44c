package kernel

import (
	"errors"
	"sync"

	"github.com/sarchlab/pagingsim/mem/vm"
)

// A Process is a user program with its own address space.
type Process struct {
	kernel *Kernel
	pid    vm.PID
	id     string
	name   string
	pt     *vm.PageTable
	argc   int
	argv   uint64

	lock       sync.Mutex
	exited     bool
	exitStatus int
	err        error
}

// PID returns the process ID.
func (p *Process) PID() vm.PID {
	return p.pid
}

// ID returns the globally unique ID of the process.
func (p *Process) ID() string {
	return p.id
}

// Name returns the name the process was executed with.
func (p *Process) Name() string {
	return p.name
}

// PageTable returns the page table of the process.
func (p *Process) PageTable() *vm.PageTable {
	return p.pt
}

// Args returns the number of arguments and the virtual address of the
// argument vector.
func (p *Process) Args() (argc int, argv uint64) {
	return p.argc, p.argv
}

// ReadVirtualMemory copies from the address space of the process into buf. A
// backing store failure kills the process.
func (p *Process) ReadVirtualMemory(vaddr uint64, buf []byte) (int, error) {
	n, err := p.kernel.mmu.ReadVirtualMemory(p.pt, vaddr, buf)

	return n, p.checkFatal(err)
}

// WriteVirtualMemory copies data into the address space of the process. A
// backing store failure kills the process.
func (p *Process) WriteVirtualMemory(vaddr uint64, data []byte) (int, error) {
	n, err := p.kernel.mmu.WriteVirtualMemory(p.pt, vaddr, data)

	return n, p.checkFatal(err)
}

func (p *Process) checkFatal(err error) error {
	if errors.Is(err, vm.ErrBackingStore) {
		p.Kill(err)
	}

	return err
}

// Exit terminates the process with the given status.
func (p *Process) Exit(status int) {
	p.terminate(status, nil)
}

// Kill terminates the process with status -1. err tells why.
func (p *Process) Kill(err error) {
	p.terminate(-1, err)
}

func (p *Process) terminate(status int, err error) {
	p.lock.Lock()

	if p.exited {
		p.lock.Unlock()
		return
	}

	p.exited = true
	p.exitStatus = status
	p.err = err
	p.lock.Unlock()

	p.kernel.reap(p)
}

// Exited tells if the process has terminated.
func (p *Process) Exited() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.exited
}

// ExitStatus returns the status the process terminated with.
func (p *Process) ExitStatus() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.exitStatus
}

// Err returns the error that killed the process, if any.
func (p *Process) Err() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.err
}
