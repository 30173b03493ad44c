package kernel

import (
	"fmt"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/sim/hooking"
)

// Stats counts the paging events of a kernel. It is a hook attached to the
// MMU and to every TLB.
type Stats struct {
	counts *hooking.CountHook
}

// NewStats creates a Stats with all the counters at zero.
func NewStats() *Stats {
	return &Stats{counts: hooking.NewCountHook()}
}

// Func counts an event.
func (s *Stats) Func(ctx hooking.HookCtx) {
	s.counts.Func(ctx)
}

// StatsSnapshot holds the value of every counter at one instant.
type StatsSnapshot struct {
	PageFaults uint64 `json:"page_faults"`
	ImageLoads uint64 `json:"image_loads"`
	SwapIns    uint64 `json:"swap_ins"`
	SwapOuts   uint64 `json:"swap_outs"`
	ZeroFills  uint64 `json:"zero_fills"`
	Evictions  uint64 `json:"evictions"`
	TLBMisses  uint64 `json:"tlb_misses"`
	TLBFlushes uint64 `json:"tlb_flushes"`
}

// Snapshot returns the current value of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		PageFaults: s.counts.Count(vm.HookPosPageFault),
		ImageLoads: s.counts.Count(vm.HookPosImageLoad),
		SwapIns:    s.counts.Count(vm.HookPosSwapIn),
		SwapOuts:   s.counts.Count(vm.HookPosSwapOut),
		ZeroFills:  s.counts.Count(vm.HookPosZeroFill),
		Evictions:  s.counts.Count(vm.HookPosFrameEvict),
		TLBMisses:  s.counts.Count(vm.HookPosTLBMiss),
		TLBFlushes: s.counts.Count(vm.HookPosTLBFlush),
	}
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"Paging: page faults %d, image reads %d, swap reads %d, "+
			"swap writes %d, zero fills %d, evictions %d\n"+
			"TLB: misses %d, flushes %d",
		s.PageFaults, s.ImageLoads, s.SwapIns,
		s.SwapOuts, s.ZeroFills, s.Evictions,
		s.TLBMisses, s.TLBFlushes)
}
