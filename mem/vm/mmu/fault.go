package mmu

import (
	"fmt"
	"log"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/ipt"
)

// HandleFault makes vpn of pt resident and returns its valid entry. Faulting
// an already valid page returns the current entry without any I/O.
//
// The errors are fatal to the process: vm.ErrBackingStore if the executable
// image or the swap area fails, vm.ErrAddressOutOfRange if vpn is outside of
// the address space or the address space has been torn down.
func (c *Comp) HandleFault(pt *vm.PageTable, vpn int) (vm.Page, error) {
	space, ok := c.spaceOf(pt)
	if !ok {
		return vm.Page{}, fmt.Errorf("%w: process %d has no address space",
			vm.ErrAddressOutOfRange, pt.PID())
	}

	space.faultLock.Lock()
	defer space.faultLock.Unlock()

	page, ok := pt.Lookup(vpn)
	if !ok {
		return vm.Page{}, fmt.Errorf("%w: page %d of process %d",
			vm.ErrAddressOutOfRange, vpn, pt.PID())
	}

	if page.Valid {
		return page, nil
	}

	if pt.Closed() {
		return vm.Page{}, fmt.Errorf("%w: process %d has no address space",
			vm.ErrAddressOutOfRange, pt.PID())
	}

	c.invokeHook(vm.HookPosPageFault, vm.PagingEvent{
		PID:   pt.PID(),
		VPN:   vpn,
		Frame: vm.NoFrame,
		Slot:  vm.NoSlot,
	})

	frame, prev := c.ipt.SelectVictim()

	if prev.Owner != nil {
		err := c.evict(frame, prev)
		if err != nil {
			return vm.Page{}, err
		}
	}

	unbacked, err := c.populate(space, pt, vpn, frame)
	if err != nil {
		c.ipt.Discard(frame)
		return vm.Page{}, err
	}

	installed := pt.Install(vpn, frame, unbacked)
	c.ipt.Update(frame, pt, installed)
	c.ipt.Unpin(frame)

	return installed, nil
}

// evict takes frame away from its previous occupant. The occupant's entry is
// invalidated before the TLBs are shot down so that no TLB can install the
// frame again. Pages that have no other copy are written to swap.
//
// If the write-out fails, the occupant keeps the frame, the frame is given
// back and the error is returned.
func (c *Comp) evict(frame int, prev ipt.Entry) error {
	owner := prev.Owner
	vpn := prev.Page.VPN

	page, unbacked, ok := owner.Invalidate(vpn, frame)

	_, tlbDirty := c.shootdown(frame)

	if !ok {
		return nil
	}

	c.invokeHook(vm.HookPosFrameEvict, vm.PagingEvent{
		PID:   owner.PID(),
		VPN:   vpn,
		Frame: frame,
		Slot:  vm.NoSlot,
	})

	if !unbacked && !tlbDirty {
		owner.CompleteEviction(vpn, vm.NoSlot)
		return nil
	}

	slot, err := c.writeOut(frame)
	if err != nil {
		page.Dirty = page.Dirty || tlbDirty
		c.abortEviction(frame, owner, page)

		return err
	}

	c.invokeHook(vm.HookPosSwapOut, vm.PagingEvent{
		PID:   owner.PID(),
		VPN:   vpn,
		Frame: frame,
		Slot:  slot,
	})

	if !owner.CompleteEviction(vpn, slot) {
		c.swap.Free(slot)
	}

	return nil
}

func (c *Comp) abortEviction(frame int, owner *vm.PageTable, page vm.Page) {
	if !owner.AbortEviction(page.VPN, frame, page, true) {
		c.ipt.Discard(frame)
		return
	}

	restored, _ := owner.Lookup(page.VPN)
	c.ipt.Update(frame, owner, restored)
	c.ipt.Unpin(frame)

	if owner.Closed() {
		c.ipt.ReleaseOwned(frame, owner, page.VPN)
	}
}

// shootdown removes frame from every registered TLB.
func (c *Comp) shootdown(frame int) (used, dirty bool) {
	c.lock.Lock()
	tlbs := c.tlbs
	c.lock.Unlock()

	for _, t := range tlbs {
		u, d := t.InvalidateFrame(frame)
		used = used || u
		dirty = dirty || d
	}

	for _, t := range tlbs {
		if t.IsCached(frame) {
			log.Panicf("frame %d is still cached after shootdown", frame)
		}
	}

	return used, dirty
}

func (c *Comp) writeOut(frame int) (int, error) {
	data := make([]byte, c.PageSize())

	err := c.memory.ReadInto(c.frameAddr(frame), data)
	if err != nil {
		log.Panicf("cannot read frame %d: %v", frame, err)
	}

	return c.swap.WriteOut(data)
}

// populate fills frame with the content of vpn. A page with a swap slot is
// restored from swap. Otherwise a code or data page is loaded from the
// executable image and any other page is zero-filled. The returned bool tells
// if the frame now holds the only copy of the page.
func (c *Comp) populate(
	space *addressSpace,
	pt *vm.PageTable,
	vpn, frame int,
) (unbacked bool, err error) {
	coff, slot := pt.Source(vpn)
	buf := make([]byte, c.PageSize())
	event := vm.PagingEvent{PID: pt.PID(), VPN: vpn, Frame: frame, Slot: slot}

	switch {
	case slot != vm.NoSlot:
		err = c.swap.ReadIn(slot, buf)
		if err != nil {
			return false, err
		}

		unbacked = true
		c.invokeHook(vm.HookPosSwapIn, event)
	case coff != nil:
		section := space.exe.Section(coff.Section)

		err = section.LoadPage(coff.Offset, buf)
		if err != nil {
			return false, fmt.Errorf("%w: loading page %d of section %s: %v",
				vm.ErrBackingStore, coff.Offset, section.Name(), err)
		}

		c.invokeHook(vm.HookPosImageLoad, event)
	default:
		c.invokeHook(vm.HookPosZeroFill, event)
	}

	err = c.memory.Write(c.frameAddr(frame), buf)
	if err != nil {
		log.Panicf("cannot write frame %d: %v", frame, err)
	}

	return unbacked, nil
}
