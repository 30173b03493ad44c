// Package mmu provides the page-fault resolver and the address-space services
// built on top of it.
package mmu

import (
	"fmt"
	"sync"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/ipt"
	"github.com/sarchlab/pagingsim/mem/vm/swap"
	"github.com/sarchlab/pagingsim/memory"
	"github.com/sarchlab/pagingsim/sim/hooking"
)

// A TLBShootdown is a translation cache that must forget a frame before the
// frame is reused.
type TLBShootdown interface {
	// InvalidateFrame invalidates the lines pointing at frame and returns
	// the used and dirty bits they carried.
	InvalidateFrame(frame int) (used, dirty bool)

	// IsCached tells if a valid line still points at frame.
	IsCached(frame int) bool
}

// Comp is the MMU. It builds and tears down address spaces and resolves the
// page faults of all the processes.
type Comp struct {
	hooking.HookableBase

	name          string
	log2PageSize  uint64
	numStackPages int
	numArgPages   int
	memory        *memory.Storage
	ipt           *ipt.Table
	swap          *swap.Store

	lock   sync.Mutex
	spaces map[*vm.PageTable]*addressSpace
	tlbs   []TLBShootdown
}

type addressSpace struct {
	exe vm.Executable

	// faultLock serializes the faults of one process.
	faultLock sync.Mutex
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// PageSize returns the number of bytes in a page.
func (c *Comp) PageSize() uint64 {
	return 1 << c.log2PageSize
}

// Log2PageSize returns the page size as a power of 2.
func (c *Comp) Log2PageSize() uint64 {
	return c.log2PageSize
}

// IPT returns the inverted page table that the MMU allocates frames from.
func (c *Comp) IPT() *ipt.Table {
	return c.ipt
}

// RegisterTLB adds a TLB to the set of TLBs that are shot down when a frame is
// evicted.
func (c *Comp) RegisterTLB(t TLBShootdown) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.tlbs = append(c.tlbs, t)
}

// AddressSpaces returns the page tables of all the live address spaces.
func (c *Comp) AddressSpaces() []*vm.PageTable {
	c.lock.Lock()
	defer c.lock.Unlock()

	pts := make([]*vm.PageTable, 0, len(c.spaces))
	for pt := range c.spaces {
		pts = append(pts, pt)
	}

	return pts
}

// BuildAddressSpace creates the page table of a new process. Sections are
// laid out from page 0 without gaps, followed by the stack pages and the
// argument pages. With EagerLoad every page is made resident before
// returning.
func (c *Comp) BuildAddressSpace(
	pid vm.PID,
	exe vm.Executable,
	strategy vm.LoadStrategy,
) (*vm.PageTable, error) {
	numPages := 0

	for i := 0; i < exe.NumSections(); i++ {
		s := exe.Section(i)
		if s.FirstVPN() != numPages {
			return nil, fmt.Errorf("%w: section %s starts at page %d, want %d",
				vm.ErrFragmentedImage, s.Name(), s.FirstVPN(), numPages)
		}

		numPages += s.Length()
	}

	pt := vm.NewPageTable(pid, numPages+c.numStackPages+c.numArgPages)

	for i := 0; i < exe.NumSections(); i++ {
		s := exe.Section(i)
		for j := 0; j < s.Length(); j++ {
			pt.SetCoffPage(s.FirstVPN()+j,
				vm.CoffPage{Section: i, Offset: j}, s.ReadOnly())
		}
	}

	c.lock.Lock()
	c.spaces[pt] = &addressSpace{exe: exe}
	c.lock.Unlock()

	if strategy == vm.EagerLoad {
		err := c.loadAll(pt)
		if err != nil {
			c.TeardownAddressSpace(pt)
			return nil, err
		}
	}

	return pt, nil
}

func (c *Comp) loadAll(pt *vm.PageTable) error {
	if pt.NumPages() > c.ipt.NumFree() {
		return fmt.Errorf("%w: %d pages, %d free frames",
			vm.ErrInsufficientMemory, pt.NumPages(), c.ipt.NumFree())
	}

	for vpn := 0; vpn < pt.NumPages(); vpn++ {
		_, err := c.HandleFault(pt, vpn)
		if err != nil {
			return err
		}
	}

	return nil
}

// TeardownAddressSpace releases every frame and swap slot held by pt. The
// page table must not be used afterwards. Tearing down an address space twice
// does nothing.
func (c *Comp) TeardownAddressSpace(pt *vm.PageTable) {
	space, ok := c.spaceOf(pt)
	if !ok {
		return
	}

	space.faultLock.Lock()
	defer space.faultLock.Unlock()

	resident, slots := pt.Close()

	for _, r := range resident {
		c.shootdown(r.Frame)
		c.ipt.ReleaseOwned(r.Frame, pt, r.VPN)
	}

	for _, slot := range slots {
		c.swap.Free(slot)
	}

	c.lock.Lock()
	delete(c.spaces, pt)
	c.lock.Unlock()
}

// Translate returns the valid entry of vpn, resolving a page fault if needed.
func (c *Comp) Translate(pt *vm.PageTable, vpn int) (vm.Page, error) {
	page, ok := pt.Lookup(vpn)
	if !ok {
		return vm.Page{}, fmt.Errorf("%w: page %d of process %d",
			vm.ErrAddressOutOfRange, vpn, pt.PID())
	}

	if page.Valid {
		return page, nil
	}

	return c.HandleFault(pt, vpn)
}

func (c *Comp) spaceOf(pt *vm.PageTable) (*addressSpace, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	space, ok := c.spaces[pt]

	return space, ok
}

func (c *Comp) frameAddr(frame int) uint64 {
	return uint64(frame) << c.log2PageSize
}

func (c *Comp) invokeHook(pos *hooking.HookPos, e vm.PagingEvent) {
	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   e,
	})
}
