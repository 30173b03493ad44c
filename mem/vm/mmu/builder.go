package mmu

import (
	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/ipt"
	"github.com/sarchlab/pagingsim/mem/vm/swap"
	"github.com/sarchlab/pagingsim/memory"
)

// A Builder can build MMU component
type Builder struct {
	log2PageSize  uint64
	numStackPages int
	numArgPages   int
	memory        *memory.Storage
	ipt           *ipt.Table
	swap          *swap.Store
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		log2PageSize:  10,
		numStackPages: 8,
		numArgPages:   1,
	}
}

// WithLog2PageSize sets the page size that the mmu support.
func (b Builder) WithLog2PageSize(log2PageSize uint64) Builder {
	b.log2PageSize = log2PageSize
	return b
}

// WithNumStackPages sets the number of zero-filled pages placed after the
// sections of every address space.
func (b Builder) WithNumStackPages(n int) Builder {
	b.numStackPages = n
	return b
}

// WithNumArgPages sets the number of pages reserved for the program arguments
// at the end of every address space.
func (b Builder) WithNumArgPages(n int) Builder {
	b.numArgPages = n
	return b
}

// WithMemory sets the physical memory. Frame f occupies the bytes
// [f*pageSize, (f+1)*pageSize).
func (b Builder) WithMemory(m *memory.Storage) Builder {
	b.memory = m
	return b
}

// WithIPT sets the inverted page table that hands out the frames.
func (b Builder) WithIPT(t *ipt.Table) Builder {
	b.ipt = t
	return b
}

// WithSwap sets the store that evicted pages are written to.
func (b Builder) WithSwap(s *swap.Store) Builder {
	b.swap = s
	return b
}

// Build returns a newly-created MMU component
func (b Builder) Build(name string) *Comp {
	b.mustBeComplete()

	return &Comp{
		name:          name,
		log2PageSize:  b.log2PageSize,
		numStackPages: b.numStackPages,
		numArgPages:   b.numArgPages,
		memory:        b.memory,
		ipt:           b.ipt,
		swap:          b.swap,
		spaces:        make(map[*vm.PageTable]*addressSpace),
	}
}

func (b Builder) mustBeComplete() {
	if b.memory == nil {
		panic("mmu requires a physical memory")
	}

	if b.ipt == nil {
		panic("mmu requires an inverted page table")
	}

	if b.swap == nil {
		panic("mmu requires a swap store")
	}

	pageSize := uint64(1) << b.log2PageSize
	if b.swap.SlotSize() != int(pageSize) {
		panic("swap slot size must match the page size")
	}

	if b.memory.Capacity() != 0 &&
		b.memory.Capacity() < uint64(b.ipt.NumFrames())*pageSize {
		panic("physical memory is smaller than the frames it must hold")
	}

	if b.numStackPages < 0 || b.numArgPages < 0 {
		panic("page counts must not be negative")
	}
}
