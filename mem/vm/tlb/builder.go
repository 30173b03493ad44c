package tlb

import (
	"github.com/sarchlab/pagingsim/mem/vm/tlb/internal"
)

// A Builder can build TLBs
type Builder struct {
	numLines     int
	log2PageSize uint64
	faultHandler FaultHandler
	usage        UsageTracker
}

// MakeBuilder returns a Builder
func MakeBuilder() Builder {
	return Builder{
		numLines:     4,
		log2PageSize: 10,
	}
}

// WithNumLines sets the number of lines in a TLB.
func (b Builder) WithNumLines(n int) Builder {
	b.numLines = n
	return b
}

// WithLog2PageSize sets the page size as a power of 2.
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// WithFaultHandler sets the component that resolves the misses that hit an
// invalid page table entry.
func (b Builder) WithFaultHandler(h FaultHandler) Builder {
	b.faultHandler = h
	return b
}

// WithUsageTracker sets the component that is told about the frames being
// accessed.
func (b Builder) WithUsageTracker(t UsageTracker) Builder {
	b.usage = t
	return b
}

// Build creates a new TLB
func (b Builder) Build(name string) *Comp {
	if b.faultHandler == nil {
		panic("a TLB requires a fault handler")
	}

	usage := b.usage
	if usage == nil {
		usage = noUsageTracker{}
	}

	return &Comp{
		name:         name,
		log2PageSize: b.log2PageSize,
		set:          internal.NewSet(b.numLines),
		faultHandler: b.faultHandler,
		usage:        usage,
	}
}

type noUsageTracker struct{}

func (noUsageTracker) MarkUsed(int) {}
