package kernel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/tlb"
	"github.com/sarchlab/pagingsim/memory"
)

// A Processor runs one process at a time. User memory accesses go through its
// TLB only.
type Processor struct {
	id     int
	tlb    *tlb.Comp
	memory *memory.Storage

	lock    sync.Mutex
	current *Process
}

// ID returns the index of the processor.
func (p *Processor) ID() int {
	return p.id
}

// TLB returns the TLB of the processor.
func (p *Processor) TLB() *tlb.Comp {
	return p.tlb
}

// Current returns the process that is running, or nil.
func (p *Processor) Current() *Process {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.current
}

// Switch makes next the running process. The TLB is flushed. next can be nil
// to leave the processor idle.
func (p *Processor) Switch(next *Process) {
	p.lock.Lock()
	defer p.lock.Unlock()

	var pt *vm.PageTable
	if next != nil {
		pt = next.pt
	}

	p.tlb.Switch(pt)
	p.current = next
}

// Load reads one byte of the running process.
func (p *Processor) Load(vaddr uint64) (byte, error) {
	var b byte

	err := p.access(vaddr, false, func(paddr uint64) error {
		data, err := p.memory.Read(paddr, 1)
		if err != nil {
			return err
		}

		b = data[0]

		return nil
	})

	return b, err
}

// Store writes one byte of the running process.
func (p *Processor) Store(vaddr uint64, b byte) error {
	return p.access(vaddr, true, func(paddr uint64) error {
		return p.memory.Write(paddr, []byte{b})
	})
}

// access performs a user memory access. Any failure is an exception that
// kills the running process, except for the process being switched out
// while the access is in progress.
func (p *Processor) access(
	vaddr uint64,
	write bool,
	fn func(paddr uint64) error,
) error {
	proc := p.Current()
	if proc == nil {
		return ErrNoProcess
	}

	if proc.Exited() {
		return fmt.Errorf("%w: process %d", ErrProcessExited, proc.pid)
	}

	err := p.tlb.AccessFor(proc.pt, vaddr, write, fn)
	if errors.Is(err, tlb.ErrNotScheduled) {
		return err
	}

	if err != nil {
		proc.Kill(err)
		return err
	}

	return nil
}
