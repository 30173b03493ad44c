package hooking

import (
	"sort"
	"sync"
)

// CountHook counts how many times each hook position is triggered.
type CountHook struct {
	lock  sync.Mutex
	count map[string]uint64
}

// NewCountHook creates a new CountHook.
func NewCountHook() *CountHook {
	return &CountHook{
		count: make(map[string]uint64),
	}
}

// Func counts the position of the event.
func (h *CountHook) Func(ctx HookCtx) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.count[ctx.Pos.Name]++
}

// Count returns the number of times that the position has been triggered.
func (h *CountHook) Count(pos *HookPos) uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.count[pos.Name]
}

// Names returns the names of all positions counted so far, sorted.
func (h *CountHook) Names() []string {
	h.lock.Lock()
	defer h.lock.Unlock()

	names := make([]string, 0, len(h.count))
	for name := range h.count {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Snapshot returns a copy of all the counters.
func (h *CountHook) Snapshot() map[string]uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	snapshot := make(map[string]uint64, len(h.count))
	for k, v := range h.count {
		snapshot[k] = v
	}

	return snapshot
}
