package datarecording

import (
	"time"

	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/sim/hooking"
)

// PagingTableName is the table that paging events are written to.
const PagingTableName = "paging_event"

// PagingEntry is one row of the paging_event table. Time is in nanoseconds
// since the recorder was created.
type PagingEntry struct {
	Time   int64
	Domain string
	Event  string
	PID    uint32
	VPN    int
	Frame  int
	Slot   int
}

// A PagingRecorder is a hook that writes every paging event into a table.
type PagingRecorder struct {
	recorder DataRecorder
	start    time.Time
}

// NewPagingRecorder creates the paging_event table in recorder.
func NewPagingRecorder(recorder DataRecorder) *PagingRecorder {
	recorder.CreateTable(PagingTableName, PagingEntry{})

	return &PagingRecorder{
		recorder: recorder,
		start:    time.Now(),
	}
}

// Func records the event. Items that are not paging events are ignored.
func (r *PagingRecorder) Func(ctx hooking.HookCtx) {
	e, ok := ctx.Item.(vm.PagingEvent)
	if !ok {
		return
	}

	domain := ""
	if named, ok := ctx.Domain.(interface{ Name() string }); ok {
		domain = named.Name()
	}

	r.recorder.InsertData(PagingTableName, PagingEntry{
		Time:   time.Since(r.start).Nanoseconds(),
		Domain: domain,
		Event:  ctx.Pos.Name,
		PID:    uint32(e.PID),
		VPN:    e.VPN,
		Frame:  e.Frame,
		Slot:   e.Slot,
	})
}
