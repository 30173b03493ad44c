// Package vm provides the models for demand-paged address translation.
package vm

// PID stands for Process ID.
type PID uint32

// NoSlot marks a page that has no data in the swap area.
const NoSlot = -1

// NoFrame marks a page that is not backed by any physical frame.
const NoFrame = -1

// A Page is a translation entry. The same shape is used by the per-process
// page table and by the TLB lines.
type Page struct {
	VPN      int
	Frame    int
	Valid    bool
	ReadOnly bool
	Used     bool
	Dirty    bool
}

// A CoffPage locates the content of a code or data page in the executable
// image.
type CoffPage struct {
	Section int
	Offset  int
}

// A PagingEvent is the item carried by the hooks that paging components
// invoke.
type PagingEvent struct {
	PID   PID
	VPN   int
	Frame int
	Slot  int
}
