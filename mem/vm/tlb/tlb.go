// Package tlb provides the translation cache of a simulated processor and the
// logic that keeps it consistent with the page tables.
package tlb

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/tlb/internal"
	"github.com/sarchlab/pagingsim/sim/hooking"
)

// ErrNotScheduled is returned when the page table of an access is no longer
// the one the TLB translates for.
var ErrNotScheduled = errors.New("page table is not scheduled")

// A FaultHandler makes a virtual page resident and returns its valid entry.
type FaultHandler interface {
	HandleFault(pt *vm.PageTable, vpn int) (vm.Page, error)
}

// A UsageTracker is told about every frame that the TLB lets the processor
// access.
type UsageTracker interface {
	MarkUsed(frame int)
}

// Comp is a TLB. All the lines belong to the page table that is currently
// scheduled on the processor.
type Comp struct {
	hooking.HookableBase

	name         string
	log2PageSize uint64

	lock         sync.Mutex
	set          internal.Set
	current      *vm.PageTable
	faultHandler FaultHandler
	usage        UsageTracker
}

// Name returns the name of the TLB.
func (c *Comp) Name() string {
	return c.name
}

// NumLines returns the number of lines.
func (c *Comp) NumLines() int {
	return c.set.NumWays()
}

// PageTable returns the page table the lines currently translate for.
func (c *Comp) PageTable() *vm.PageTable {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.current
}

// Lines returns a copy of every line.
func (c *Comp) Lines() []vm.Page {
	c.lock.Lock()
	defer c.lock.Unlock()

	lines := make([]vm.Page, c.set.NumWays())
	for i := range lines {
		lines[i] = c.set.Line(i)
	}

	return lines
}

// Switch flushes the lines of the outgoing page table and starts translating
// for pt.
func (c *Comp) Switch(pt *vm.PageTable) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.flushLocked()
	c.current = pt
}

// Flush invalidates every line. The used and dirty bits of the valid lines are
// copied back to the page table first.
func (c *Comp) Flush() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.flushLocked()
}

func (c *Comp) flushLocked() {
	if c.current == nil {
		return
	}

	for way := 0; way < c.set.NumWays(); way++ {
		line := c.set.Line(way)
		if !line.Valid {
			continue
		}

		c.writeBackLocked(c.set.Invalidate(way))
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    vm.HookPosTLBFlush,
		Item: vm.PagingEvent{
			PID:   c.current.PID(),
			VPN:   -1,
			Frame: vm.NoFrame,
			Slot:  vm.NoSlot,
		},
	})
}

func (c *Comp) writeBackLocked(line vm.Page) {
	c.current.SyncBits(line.VPN, line.Frame, line.Used, line.Dirty)

	if line.Used {
		c.usage.MarkUsed(line.Frame)
	}
}

// Access translates vaddr for the current page table and calls fn with the
// physical address while the translation is guaranteed to stay valid. A
// missing translation is resolved with HandleMiss. Access sets the used bit of
// the line, and the dirty bit if write is true.
func (c *Comp) Access(
	vaddr uint64,
	write bool,
	fn func(paddr uint64) error,
) error {
	c.lock.Lock()
	pt := c.current
	c.lock.Unlock()

	if pt == nil {
		log.Panicf("TLB %s has no page table", c.name)
	}

	return c.AccessFor(pt, vaddr, write, fn)
}

// AccessFor is Access on behalf of pt. If the TLB is switched away from pt
// before the access completes, fn is not called and ErrNotScheduled is
// returned.
func (c *Comp) AccessFor(
	pt *vm.PageTable,
	vaddr uint64,
	write bool,
	fn func(paddr uint64) error,
) error {
	if pt == nil {
		log.Panicf("TLB %s accessed without a page table", c.name)
	}

	vpn := int(vaddr >> c.log2PageSize)
	offset := vaddr & (1<<c.log2PageSize - 1)

	for {
		c.lock.Lock()

		if c.current != pt {
			c.lock.Unlock()
			return fmt.Errorf("%w: page %d of process %d on TLB %s",
				ErrNotScheduled, vpn, pt.PID(), c.name)
		}

		way, page, found := c.set.Lookup(vpn)
		if found {
			err := c.hitLocked(way, page, write, offset, fn)
			c.lock.Unlock()

			return err
		}

		c.lock.Unlock()

		_, err := c.HandleMiss(pt, vpn)
		if err != nil {
			return err
		}
	}
}

func (c *Comp) hitLocked(
	way int,
	page vm.Page,
	write bool,
	offset uint64,
	fn func(paddr uint64) error,
) error {
	if write && page.ReadOnly {
		return fmt.Errorf("%w: page %d", vm.ErrReadOnly, page.VPN)
	}

	page.Used = true
	page.Dirty = page.Dirty || write
	c.set.Update(way, page)
	c.usage.MarkUsed(page.Frame)

	return fn(uint64(page.Frame)<<c.log2PageSize | offset)
}

// HandleMiss makes sure that vpn has a valid entry in pt and installs it into
// a line. The line is chosen round-robin, invalid lines first. The bits of a
// valid line that is replaced are copied back to the page table. Nothing is
// installed if pt is no longer the current page table.
func (c *Comp) HandleMiss(pt *vm.PageTable, vpn int) (vm.Page, error) {
	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    vm.HookPosTLBMiss,
		Item: vm.PagingEvent{
			PID:   pt.PID(),
			VPN:   vpn,
			Frame: vm.NoFrame,
			Slot:  vm.NoSlot,
		},
	})

	for {
		page, ok := pt.Lookup(vpn)
		if !ok {
			return vm.Page{}, fmt.Errorf("%w: page %d of process %d",
				vm.ErrAddressOutOfRange, vpn, pt.PID())
		}

		if !page.Valid {
			_, err := c.faultHandler.HandleFault(pt, vpn)
			if err != nil {
				return vm.Page{}, err
			}
		}

		// The frame may be evicted again before install. The retry is not
		// bounded, so processes that keep evicting each other's pages on
		// too few frames can delay each other for a long time.
		installed, ok := c.install(pt, vpn)
		if ok {
			return installed, nil
		}
	}
}

// install copies the entry of vpn into a line. The entry is read again under
// the TLB lock so that a frame that an eviction has already taken away is
// never installed.
func (c *Comp) install(pt *vm.PageTable, vpn int) (vm.Page, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	page, _ := pt.Lookup(vpn)
	if !page.Valid {
		return vm.Page{}, false
	}

	if c.current != pt {
		return page, true
	}

	if way, _, found := c.set.Lookup(vpn); found {
		return c.set.Line(way), true
	}

	way := c.set.Evict()

	victim := c.set.Line(way)
	if victim.Valid {
		c.writeBackLocked(victim)
	}

	c.set.Update(way, page)
	c.usage.MarkUsed(page.Frame)

	return page, true
}

// InvalidateFrame invalidates every line that points at frame and returns the
// used and dirty bits they carried.
func (c *Comp) InvalidateFrame(frame int) (used, dirty bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for way := 0; way < c.set.NumWays(); way++ {
		line := c.set.Line(way)
		if !line.Valid || line.Frame != frame {
			continue
		}

		c.set.Invalidate(way)

		used = used || line.Used
		dirty = dirty || line.Dirty
	}

	return used, dirty
}

// IsCached tells if a valid line points at frame.
func (c *Comp) IsCached(frame int) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	for way := 0; way < c.set.NumWays(); way++ {
		line := c.set.Line(way)
		if line.Valid && line.Frame == frame {
			return true
		}
	}

	return false
}
