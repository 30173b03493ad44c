// Package kernel boots the demand-paged virtual-memory system of a simulated
// machine and runs processes on it.
package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/xid"
	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/ipt"
	"github.com/sarchlab/pagingsim/mem/vm/mmu"
	"github.com/sarchlab/pagingsim/mem/vm/swap"
	"github.com/sarchlab/pagingsim/memory"
	"github.com/sarchlab/pagingsim/sim/hooking"
)

var (
	// ErrNoProcess is returned when a processor without a running process
	// accesses memory.
	ErrNoProcess = errors.New("no process is running")

	// ErrProcessExited is returned when a terminated process is used.
	ErrProcessExited = errors.New("process has exited")

	// ErrArgumentsTooLong is returned when the arguments do not fit in the
	// argument page.
	ErrArgumentsTooLong = errors.New("arguments do not fit in one page")

	// ErrShutdown is the reason given to the processes that are still alive
	// when the kernel shuts down.
	ErrShutdown = errors.New("kernel shut down")
)

// A Kernel owns the physical memory, the frame pools and the swap area and
// runs processes on its processors.
type Kernel struct {
	name         string
	id           string
	log2PageSize uint64
	strategy     vm.LoadStrategy

	memory     *memory.Storage
	ipt        *ipt.Table
	swap       *swap.Store
	mmu        *mmu.Comp
	processors []*Processor
	stats      *Stats

	lock      sync.Mutex
	nextPID   vm.PID
	processes map[vm.PID]*Process
	shutdown  bool
}

// Name returns the name of the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// ID returns the unique ID of this boot of the kernel.
func (k *Kernel) ID() string {
	return k.id
}

// PageSize returns the number of bytes in a page.
func (k *Kernel) PageSize() uint64 {
	return 1 << k.log2PageSize
}

// Memory returns the physical memory.
func (k *Kernel) Memory() *memory.Storage {
	return k.memory
}

// IPT returns the inverted page table.
func (k *Kernel) IPT() *ipt.Table {
	return k.ipt
}

// Swap returns the swap store.
func (k *Kernel) Swap() *swap.Store {
	return k.swap
}

// MMU returns the page-fault resolver.
func (k *Kernel) MMU() *mmu.Comp {
	return k.mmu
}

// Stats returns the paging counters.
func (k *Kernel) Stats() *Stats {
	return k.stats
}

// Processors returns all the processors.
func (k *Kernel) Processors() []*Processor {
	return k.processors
}

// Processor returns processor i.
func (k *Kernel) Processor(i int) *Processor {
	return k.processors[i]
}

// AcceptHook registers a hook with the MMU and every TLB.
func (k *Kernel) AcceptHook(hook hooking.Hook) {
	k.mmu.AcceptHook(hook)

	for _, p := range k.processors {
		p.tlb.AcceptHook(hook)
	}
}

// Exec creates a process running exe. args are written to the argument page
// as an array of 4-byte little-endian pointers followed by the
// NUL-terminated strings.
func (k *Kernel) Exec(
	name string,
	exe vm.Executable,
	args []string,
) (*Process, error) {
	pid, err := k.allocPID()
	if err != nil {
		return nil, err
	}

	pt, err := k.mmu.BuildAddressSpace(pid, exe, k.strategy)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", name, err)
	}

	p := &Process{
		kernel: k,
		pid:    pid,
		id:     xid.New().String(),
		name:   name,
		pt:     pt,
	}

	err = k.writeArgs(p, args)
	if err != nil {
		k.mmu.TeardownAddressSpace(pt)
		return nil, fmt.Errorf("executing %s: %w", name, err)
	}

	k.lock.Lock()
	k.processes[pid] = p
	k.lock.Unlock()

	return p, nil
}

func (k *Kernel) allocPID() (vm.PID, error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	if k.shutdown {
		return 0, ErrShutdown
	}

	k.nextPID++

	return k.nextPID, nil
}

func (k *Kernel) writeArgs(p *Process, args []string) error {
	pageSize := k.PageSize()
	base := uint64(p.pt.NumPages()-1) * pageSize

	size := 4 * len(args)
	for _, a := range args {
		size += len(a) + 1
	}

	if uint64(size) > pageSize {
		return fmt.Errorf("%w: %d bytes", ErrArgumentsTooLong, size)
	}

	p.argc = len(args)
	p.argv = base

	if len(args) == 0 {
		return nil
	}

	buf := make([]byte, size)
	offset := 4 * len(args)

	for i, a := range args {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(base)+uint32(offset))
		copy(buf[offset:], a)
		offset += len(a) + 1
	}

	_, err := k.mmu.WriteVirtualMemory(p.pt, base, buf)

	return err
}

func (k *Kernel) reap(p *Process) {
	k.mmu.TeardownAddressSpace(p.pt)

	k.lock.Lock()
	delete(k.processes, p.pid)
	k.lock.Unlock()
}

// Process returns a live process by its PID.
func (k *Kernel) Process(pid vm.PID) (*Process, bool) {
	k.lock.Lock()
	defer k.lock.Unlock()

	p, ok := k.processes[pid]

	return p, ok
}

// Processes returns the live processes ordered by PID.
func (k *Kernel) Processes() []*Process {
	k.lock.Lock()
	defer k.lock.Unlock()

	procs := make([]*Process, 0, len(k.processes))
	for _, p := range k.processes {
		procs = append(procs, p)
	}

	sort.Slice(procs, func(i, j int) bool {
		return procs[i].pid < procs[j].pid
	})

	return procs
}

// CheckInvariants verifies the consistency of the page tables and the
// inverted page table. It must be called while no process runs.
func (k *Kernel) CheckInvariants() error {
	return k.mmu.CheckInvariants()
}

// Shutdown kills the remaining processes and discards the swap area.
func (k *Kernel) Shutdown() error {
	k.lock.Lock()

	if k.shutdown {
		k.lock.Unlock()
		return nil
	}

	k.shutdown = true
	k.lock.Unlock()

	for _, p := range k.processors {
		p.Switch(nil)
	}

	for _, p := range k.Processes() {
		p.Kill(ErrShutdown)
	}

	return k.swap.Close()
}
