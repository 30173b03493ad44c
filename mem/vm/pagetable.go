package vm

import (
	"fmt"
	"sync"
)

// A PageTable holds the translation entries of one process, one per virtual
// page. It is owned by its process. The only other writer is the fault
// resolver of another process, which invalidates an entry when it evicts the
// frame behind it.
type PageTable struct {
	sync.Mutex

	pid      PID
	entries  []entry
	closed   bool
	evictEnd *sync.Cond
}

type entry struct {
	page Page
	coff *CoffPage
	slot int

	// unbacked is set when the resident copy is the only copy of the page,
	// either because it was restored from swap or because it was written.
	unbacked bool

	// evicting is set between the invalidation of a page by an eviction and
	// the moment the evictor reports where the data went.
	evicting bool
}

// NewPageTable creates a page table with numPages invalid entries.
func NewPageTable(pid PID, numPages int) *PageTable {
	pt := &PageTable{
		pid:     pid,
		entries: make([]entry, numPages),
	}
	pt.evictEnd = sync.NewCond(&pt.Mutex)

	for vpn := range pt.entries {
		pt.entries[vpn] = entry{
			page: Page{VPN: vpn, Frame: NoFrame},
			slot: NoSlot,
		}
	}

	return pt
}

// PID returns the owner of the page table.
func (pt *PageTable) PID() PID {
	return pt.pid
}

// NumPages returns the number of virtual pages.
func (pt *PageTable) NumPages() int {
	return len(pt.entries)
}

// SetCoffPage records where the content of vpn lives in the executable image.
// It is only called while the address space is being built.
func (pt *PageTable) SetCoffPage(vpn int, coff CoffPage, readOnly bool) {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vpn)

	e := &pt.entries[vpn]
	e.coff = &coff
	e.page.ReadOnly = readOnly
}

// Lookup returns the entry of vpn. The bool return value is false if vpn is
// outside of the address space.
func (pt *PageTable) Lookup(vpn int) (Page, bool) {
	pt.Lock()
	defer pt.Unlock()

	if vpn < 0 || vpn >= len(pt.entries) {
		return Page{}, false
	}

	return pt.entries[vpn].page, true
}

// Source returns where a non-resident page must be populated from: its
// executable descriptor (nil for stack and argument pages) and its swap slot.
// If the page is being written out by an eviction, Source waits until the
// swap slot is known.
func (pt *PageTable) Source(vpn int) (coff *CoffPage, slot int) {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vpn)

	for pt.entries[vpn].evicting && !pt.closed {
		pt.evictEnd.Wait()
	}

	e := pt.entries[vpn]
	if e.coff != nil {
		c := *e.coff
		coff = &c
	}

	return coff, e.slot
}

// Install makes vpn resident in frame. The swap slot, if there was one, is
// considered consumed.
func (pt *PageTable) Install(vpn, frame int, unbacked bool) Page {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vpn)

	e := &pt.entries[vpn]
	e.page = Page{
		VPN:      vpn,
		Frame:    frame,
		Valid:    true,
		ReadOnly: e.page.ReadOnly,
	}
	e.slot = NoSlot
	e.unbacked = unbacked

	return e.page
}

// Invalidate marks vpn as not resident if it is currently backed by frame. It
// returns the entry as it was before the invalidation and whether the
// resident copy was the only copy of the page. ok is false when the entry
// does not map frame anymore or the page table has been closed.
//
// A successful Invalidate starts an eviction that must be ended with
// CompleteEviction.
func (pt *PageTable) Invalidate(vpn, frame int) (
	page Page,
	unbacked bool,
	ok bool,
) {
	pt.Lock()
	defer pt.Unlock()

	if pt.closed || vpn < 0 || vpn >= len(pt.entries) {
		return Page{}, false, false
	}

	e := &pt.entries[vpn]
	if !e.page.Valid || e.page.Frame != frame {
		return Page{}, false, false
	}

	page = e.page
	unbacked = e.unbacked || e.page.Dirty

	e.evicting = true
	e.page.Valid = false
	e.page.Frame = NoFrame
	e.page.Used = false
	e.page.Dirty = false
	e.unbacked = false

	return page, unbacked, true
}

// CompleteEviction ends the eviction started by Invalidate. slot is where the
// data of the page now lives, or NoSlot if it was not written out. It returns
// false if the page table has been closed in the meantime, in which case the
// caller still owns the slot.
func (pt *PageTable) CompleteEviction(vpn, slot int) bool {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vpn)

	e := &pt.entries[vpn]
	if pt.closed {
		e.evicting = false
		return false
	}

	if !e.evicting {
		panic(fmt.Sprintf("page %d is not being evicted", vpn))
	}

	e.slot = slot
	e.evicting = false
	pt.evictEnd.Broadcast()

	return true
}

// AbortEviction undoes Invalidate: vpn is mapped to frame again with the bits
// of page. It returns false if the page table has been closed in the meantime.
func (pt *PageTable) AbortEviction(vpn, frame int, page Page, unbacked bool) bool {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vpn)

	e := &pt.entries[vpn]
	if pt.closed {
		e.evicting = false
		return false
	}

	if !e.evicting {
		panic(fmt.Sprintf("page %d is not being evicted", vpn))
	}

	e.page = page
	e.page.VPN = vpn
	e.page.Frame = frame
	e.page.Valid = true
	e.unbacked = unbacked
	e.evicting = false
	pt.evictEnd.Broadcast()

	return true
}

// Touch sets the used bit, and the dirty bit if write is true, of vpn if it
// is still backed by frame.
func (pt *PageTable) Touch(vpn, frame int, write bool) bool {
	return pt.SyncBits(vpn, frame, true, write)
}

// SyncBits copies the used and dirty bits reported by the TLB back into the
// entry. Bits are only ever set here, never cleared. Nothing happens if vpn
// is no longer backed by frame.
func (pt *PageTable) SyncBits(vpn, frame int, used, dirty bool) bool {
	pt.Lock()
	defer pt.Unlock()

	if vpn < 0 || vpn >= len(pt.entries) {
		return false
	}

	e := &pt.entries[vpn]
	if !e.page.Valid || e.page.Frame != frame {
		return false
	}

	e.page.Used = e.page.Used || used
	e.page.Dirty = e.page.Dirty || dirty

	return true
}

// ResidentPage is a page that held a frame when the page table was closed.
type ResidentPage struct {
	VPN   int
	Frame int
}

// Close invalidates every entry and returns the frames and swap slots that the
// page table still referenced. Later invalidations and slot records from
// other processes are refused.
func (pt *PageTable) Close() (resident []ResidentPage, slots []int) {
	pt.Lock()
	defer pt.Unlock()

	if pt.closed {
		return nil, nil
	}

	pt.closed = true
	pt.evictEnd.Broadcast()

	for vpn := range pt.entries {
		e := &pt.entries[vpn]

		if e.page.Valid {
			resident = append(resident, ResidentPage{VPN: vpn, Frame: e.page.Frame})
		}

		if e.slot != NoSlot {
			slots = append(slots, e.slot)
		}

		e.page.Valid = false
		e.page.Frame = NoFrame
		e.slot = NoSlot
	}

	return resident, slots
}

// Closed tells if the page table has been torn down.
func (pt *PageTable) Closed() bool {
	pt.Lock()
	defer pt.Unlock()

	return pt.closed
}

// Pages returns a copy of all the entries.
func (pt *PageTable) Pages() []Page {
	pt.Lock()
	defer pt.Unlock()

	pages := make([]Page, len(pt.entries))
	for i, e := range pt.entries {
		pages[i] = e.page
	}

	return pages
}

// SwapSlot returns the swap slot recorded for vpn, or NoSlot.
func (pt *PageTable) SwapSlot(vpn int) int {
	pt.Lock()
	defer pt.Unlock()

	pt.pageMustExist(vpn)

	return pt.entries[vpn].slot
}

func (pt *PageTable) pageMustExist(vpn int) {
	if vpn < 0 || vpn >= len(pt.entries) {
		panic(fmt.Sprintf("page %d does not exist", vpn))
	}
}
