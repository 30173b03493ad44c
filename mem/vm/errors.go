package vm

import "errors"

var (
	// ErrBackingStore is returned when the executable image or the swap area
	// cannot be read or written. The faulting process cannot make progress.
	ErrBackingStore = errors.New("backing store failure")

	// ErrAddressOutOfRange is returned when a virtual address is outside of
	// the address space.
	ErrAddressOutOfRange = errors.New("virtual address out of range")

	// ErrReadOnly is returned when writing to a read-only page.
	ErrReadOnly = errors.New("write to read-only page")

	// ErrInsufficientMemory is returned when an eagerly loaded address space
	// does not fit in physical memory.
	ErrInsufficientMemory = errors.New("insufficient physical memory")

	// ErrFragmentedImage is returned when the sections of an executable do
	// not start at page 0 or are not contiguous.
	ErrFragmentedImage = errors.New("fragmented executable")
)
