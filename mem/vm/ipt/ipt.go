// Package ipt provides the inverted page table, the global record of which
// process page occupies each physical frame.
package ipt

import (
	"log"
	"sync"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/frame"
)

// An Entry describes what a frame holds. A nil Owner means the frame is free
// or in the middle of being populated.
type Entry struct {
	Owner    *vm.PageTable
	Page     vm.Page
	PinCount int

	// releasing is set on a frame whose owner released it while it was
	// pinned. The frame goes back to the free list at its last Unpin.
	releasing bool
}

// A Table has one entry per physical frame. Frames are obtained from the
// table rather than from the allocator directly, so that a frame is pinned
// from the moment it is handed out until its new content is installed.
type Table struct {
	lock      sync.Mutex
	canPin    *sync.Cond
	frames    *frame.Allocator
	entries   []Entry
	numPinned int
	victim    int
}

// NewTable creates a table covering every frame of the allocator.
func NewTable(frames *frame.Allocator) *Table {
	t := &Table{
		frames:  frames,
		entries: make([]Entry, frames.NumFrames()),
	}
	t.canPin = sync.NewCond(&t.lock)

	return t
}

// NumFrames returns the number of entries.
func (t *Table) NumFrames() int {
	return len(t.entries)
}

// Update records that frame now holds page on behalf of owner.
func (t *Table) Update(frame int, owner *vm.PageTable, page vm.Page) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)

	e := &t.entries[frame]
	e.Owner = owner
	e.Page = page
}

// Get returns the entry of a frame. The bool return value is false if the
// frame is out of range.
func (t *Table) Get(frame int) (Entry, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if frame < 0 || frame >= len(t.entries) {
		return Entry{}, false
	}

	return t.entries[frame], true
}

// Pin prevents a frame from being selected as a victim.
func (t *Table) Pin(frame int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)
	t.pinLocked(frame)
}

// PinOwned pins a frame only if it still holds vpn of owner. It is used when
// a translation obtained earlier is about to be used for a memory copy.
func (t *Table) PinOwned(frame int, owner *vm.PageTable, vpn int) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)

	e := &t.entries[frame]
	if e.Owner != owner || e.Page.VPN != vpn {
		return false
	}

	t.pinLocked(frame)

	return true
}

func (t *Table) pinLocked(frame int) {
	e := &t.entries[frame]
	if e.PinCount == 0 {
		t.numPinned++
	}

	e.PinCount++
}

// Unpin reverts one Pin. When the pin count drops to zero, the goroutines
// waiting for an evictable frame are woken up.
func (t *Table) Unpin(frame int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)

	e := &t.entries[frame]
	if e.PinCount == 0 {
		log.Panicf("unpinning frame %d that is not pinned", frame)
	}

	e.PinCount--
	if e.PinCount > 0 {
		return
	}

	t.numPinned--

	if e.releasing {
		e.releasing = false
		e.Page = vm.Page{}
		t.frames.Release(frame)
	}

	t.canPin.Broadcast()
}

// NumFree returns the number of frames on the free list.
func (t *Table) NumFree() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.frames.NumFree()
}

// NumPinned returns the number of frames with a non-zero pin count.
func (t *Table) NumPinned() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.numPinned
}

// MarkUsed sets the used bit of the frame, giving it a second chance in the
// next victim scan.
func (t *Table) MarkUsed(frame int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)

	t.entries[frame].Page.Used = true
}

// SelectVictim returns a pinned frame that the caller can fill. A free frame
// is preferred. Otherwise a frame is chosen by a clock scan and its previous
// occupant is returned so that the caller can evict it. SelectVictim blocks
// while every frame is pinned.
func (t *Table) SelectVictim() (frame int, prev Entry) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if f, ok := t.frames.Acquire(); ok {
		t.takeLocked(f)
		return f, Entry{}
	}

	for t.numPinned == len(t.entries) {
		t.canPin.Wait()

		if f, ok := t.frames.Acquire(); ok {
			t.takeLocked(f)
			return f, Entry{}
		}
	}

	frame = t.clockScan()
	prev = t.entries[frame]
	prev.PinCount = 0
	t.takeLocked(frame)

	return frame, prev
}

// clockScan sweeps all the frames once, starting from the cursor. The used bit
// of every unpinned frame that has it set is cleared. The first unpinned frame
// found without the used bit is the victim. If the sweep finds none, every
// unpinned frame has had its second chance and the sweep is repeated.
func (t *Table) clockScan() int {
	n := len(t.entries)

	for {
		victim := -1

		for i := 0; i < n; i++ {
			f := (t.victim + i) % n
			e := &t.entries[f]

			if e.PinCount > 0 {
				continue
			}

			if e.Page.Used {
				e.Page.Used = false
				continue
			}

			if victim < 0 {
				victim = f
			}
		}

		if victim >= 0 {
			t.victim = (victim + 1) % n
			return victim
		}
	}
}

func (t *Table) takeLocked(frame int) {
	e := &t.entries[frame]
	if e.PinCount > 0 {
		log.Panicf("victim frame %d is pinned", frame)
	}

	e.Owner = nil
	e.Page = vm.Page{VPN: -1, Frame: frame}
	t.pinLocked(frame)
}

// Discard gives back a frame obtained from SelectVictim whose population
// failed. The frame returns to the free list.
func (t *Table) Discard(frame int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)

	e := &t.entries[frame]
	if e.PinCount != 1 || e.Owner != nil {
		log.Panicf("discarding frame %d that is not being populated", frame)
	}

	e.PinCount = 0
	e.Page = vm.Page{}
	t.numPinned--
	t.frames.Release(frame)
	t.canPin.Broadcast()
}

// ReleaseOwned frees a frame that holds vpn of owner, returning it to the free
// list. A frame pinned by a memory copy loses its owner at once and returns to
// the free list when the copy unpins it. Nothing happens and false is returned
// if the frame has been taken by somebody else, such as an ongoing eviction.
func (t *Table) ReleaseOwned(frame int, owner *vm.PageTable, vpn int) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.frameMustExist(frame)

	e := &t.entries[frame]
	if e.Owner != owner || e.Page.VPN != vpn {
		return false
	}

	e.Owner = nil

	if e.PinCount > 0 {
		e.Page = vm.Page{VPN: -1, Frame: frame}
		e.releasing = true

		return true
	}

	e.Page = vm.Page{}
	t.frames.Release(frame)
	t.canPin.Broadcast()

	return true
}

// Snapshot returns a copy of all the entries.
func (t *Table) Snapshot() []Entry {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]Entry(nil), t.entries...)
}

func (t *Table) frameMustExist(frame int) {
	if frame < 0 || frame >= len(t.entries) {
		log.Panicf("frame %d does not exist", frame)
	}
}
