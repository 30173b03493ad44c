package kernel

import (
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/mem/vm/frame"
	"github.com/sarchlab/pagingsim/mem/vm/ipt"
	"github.com/sarchlab/pagingsim/mem/vm/mmu"
	"github.com/sarchlab/pagingsim/mem/vm/swap"
	"github.com/sarchlab/pagingsim/mem/vm/tlb"
	"github.com/sarchlab/pagingsim/memory"
	"github.com/tebeka/atexit"
)

// Builder can be used to boot a kernel.
type Builder struct {
	log2PageSize  uint64
	numFrames     int
	numTLBLines   int
	numStackPages int
	numArgPages   int
	numProcessors int
	strategy      vm.LoadStrategy
	swapFile      string
	swapMedium    swap.Medium
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		log2PageSize:  10,
		numFrames:     16,
		numTLBLines:   4,
		numStackPages: 8,
		numArgPages:   1,
		numProcessors: 1,
		strategy:      vm.DemandLoad,
		swapFile:      swap.DefaultFileName,
	}
}

// WithLog2PageSize sets the page size as a power of 2.
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// WithNumFrames sets the number of physical frames.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithNumTLBLines sets the number of lines of each TLB.
func (b Builder) WithNumTLBLines(n int) Builder {
	b.numTLBLines = n
	return b
}

// WithNumStackPages sets the number of stack pages of every process.
func (b Builder) WithNumStackPages(n int) Builder {
	b.numStackPages = n
	return b
}

// WithNumArgPages sets the number of argument pages of every process.
func (b Builder) WithNumArgPages(n int) Builder {
	b.numArgPages = n
	return b
}

// WithNumProcessors sets the number of processors.
func (b Builder) WithNumProcessors(n int) Builder {
	b.numProcessors = n
	return b
}

// WithLoadStrategy sets how the address spaces get their frames.
func (b Builder) WithLoadStrategy(s vm.LoadStrategy) Builder {
	b.strategy = s
	return b
}

// WithSwapFile sets the path of the swap file.
func (b Builder) WithSwapFile(path string) Builder {
	b.swapFile = path
	return b
}

// WithSwapMedium makes the kernel swap to the given medium instead of a
// file.
func (b Builder) WithSwapMedium(m swap.Medium) Builder {
	b.swapMedium = m
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.numFrames <= 0 {
		panic("a kernel needs at least one frame")
	}

	if b.numProcessors <= 0 {
		panic("a kernel needs at least one processor")
	}

	if b.numArgPages <= 0 {
		panic("a kernel needs an argument page")
	}
}

// Build boots a kernel. The swap file is created, or truncated, and is
// removed when the kernel shuts down or the program exits through atexit.
func (b Builder) Build(name string) (*Kernel, error) {
	b.parametersMustBeValid()

	pageSize := uint64(1) << b.log2PageSize

	store, err := b.createSwap(int(pageSize))
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		name:         name,
		id:           xid.New().String(),
		log2PageSize: b.log2PageSize,
		strategy:     b.strategy,
		memory: memory.NewStorageWithUnitSize(
			uint64(b.numFrames)*pageSize, pageSize),
		ipt:       ipt.NewTable(frame.NewAllocator(b.numFrames)),
		swap:      store,
		stats:     NewStats(),
		processes: make(map[vm.PID]*Process),
	}

	k.mmu = mmu.MakeBuilder().
		WithLog2PageSize(b.log2PageSize).
		WithNumStackPages(b.numStackPages).
		WithNumArgPages(b.numArgPages).
		WithMemory(k.memory).
		WithIPT(k.ipt).
		WithSwap(k.swap).
		Build(name + ".MMU")

	for i := 0; i < b.numProcessors; i++ {
		t := tlb.MakeBuilder().
			WithNumLines(b.numTLBLines).
			WithLog2PageSize(b.log2PageSize).
			WithFaultHandler(k.mmu).
			WithUsageTracker(k.ipt).
			Build(fmt.Sprintf("%s.Processor[%d].TLB", name, i))

		k.mmu.RegisterTLB(t)
		k.processors = append(k.processors, &Processor{
			id:     i,
			tlb:    t,
			memory: k.memory,
		})
	}

	k.AcceptHook(k.stats)

	return k, nil
}

func (b Builder) createSwap(slotSize int) (*swap.Store, error) {
	if b.swapMedium != nil {
		return swap.NewStore(b.swapMedium, slotSize), nil
	}

	store, err := swap.CreateFile(b.swapFile, slotSize)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "Swap file created: %s\n", b.swapFile)

	atexit.Register(func() { _ = store.Close() })

	return store, nil
}
