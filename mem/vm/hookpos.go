package vm

import "github.com/sarchlab/pagingsim/sim/hooking"

// Hook positions of the paging components. The hook item is always a
// PagingEvent.
var (
	HookPosPageFault  = &hooking.HookPos{Name: "PageFault"}
	HookPosFrameEvict = &hooking.HookPos{Name: "FrameEvict"}
	HookPosSwapOut    = &hooking.HookPos{Name: "SwapOut"}
	HookPosSwapIn     = &hooking.HookPos{Name: "SwapIn"}
	HookPosImageLoad  = &hooking.HookPos{Name: "ImageLoad"}
	HookPosZeroFill   = &hooking.HookPos{Name: "ZeroFill"}
	HookPosTLBMiss    = &hooking.HookPos{Name: "TLBMiss"}
	HookPosTLBFlush   = &hooking.HookPos{Name: "TLBFlush"}
)
