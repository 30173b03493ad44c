package mmu

import (
	"fmt"
	"log"

	"github.com/sarchlab/pagingsim/mem/vm"
)

// ReadVirtualMemory copies len(buf) bytes starting at vaddr into buf, faulting
// pages in as needed. It returns the number of bytes copied. The copy stops at
// the first page that cannot be translated.
func (c *Comp) ReadVirtualMemory(
	pt *vm.PageTable,
	vaddr uint64,
	buf []byte,
) (int, error) {
	return c.transfer(pt, vaddr, buf, false)
}

// WriteVirtualMemory copies data to the virtual memory starting at vaddr,
// faulting pages in as needed. It returns the number of bytes copied. The
// copy stops at the first page that cannot be translated or is read-only.
func (c *Comp) WriteVirtualMemory(
	pt *vm.PageTable,
	vaddr uint64,
	data []byte,
) (int, error) {
	return c.transfer(pt, vaddr, data, true)
}

func (c *Comp) transfer(
	pt *vm.PageTable,
	vaddr uint64,
	buf []byte,
	write bool,
) (int, error) {
	pageSize := c.PageSize()
	n := 0

	for n < len(buf) {
		addr := vaddr + uint64(n)
		vpn := int(addr >> c.log2PageSize)
		offset := addr & (pageSize - 1)
		length := min(uint64(len(buf)-n), pageSize-offset)

		frame, err := c.pinPage(pt, vpn, write)
		if err != nil {
			return n, err
		}

		chunk := buf[n : n+int(length)]
		paddr := c.frameAddr(frame) + offset

		if write {
			err = c.memory.Write(paddr, chunk)
		} else {
			err = c.memory.ReadInto(paddr, chunk)
		}

		if err != nil {
			log.Panicf("cannot access frame %d: %v", frame, err)
		}

		pt.Touch(vpn, frame, write)
		c.ipt.MarkUsed(frame)
		c.ipt.Unpin(frame)

		n += int(length)
	}

	return n, nil
}

// pinPage translates vpn and pins the frame behind it. If the frame is
// evicted between the translation and the pin, the translation is retried.
func (c *Comp) pinPage(pt *vm.PageTable, vpn int, write bool) (int, error) {
	for {
		page, err := c.Translate(pt, vpn)
		if err != nil {
			return vm.NoFrame, err
		}

		if write && page.ReadOnly {
			return vm.NoFrame, fmt.Errorf("%w: page %d of process %d",
				vm.ErrReadOnly, vpn, pt.PID())
		}

		if c.ipt.PinOwned(page.Frame, pt, vpn) {
			return page.Frame, nil
		}
	}
}
