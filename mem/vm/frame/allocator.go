// Package frame tracks which physical frames are free.
package frame

import (
	"log"
	"sync"
)

// An Allocator hands out physical frames. All the frames are free when the
// allocator is created.
type Allocator struct {
	lock     sync.Mutex
	freeList []int
	isFree   []bool
}

// NewAllocator creates an allocator that manages frames 0..numFrames-1.
func NewAllocator(numFrames int) *Allocator {
	if numFrames <= 0 {
		log.Panicf("cannot manage %d frames", numFrames)
	}

	a := &Allocator{
		freeList: make([]int, 0, numFrames),
		isFree:   make([]bool, numFrames),
	}

	for i := 0; i < numFrames; i++ {
		a.freeList = append(a.freeList, i)
		a.isFree[i] = true
	}

	return a
}

// NumFrames returns the number of physical frames managed.
func (a *Allocator) NumFrames() int {
	return len(a.isFree)
}

// Acquire takes the frame that has been free the longest. Frames that were
// never used are handed out in increasing order. The bool return value is
// false if all frames are in use.
func (a *Allocator) Acquire() (int, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if len(a.freeList) == 0 {
		return 0, false
	}

	frame := a.freeList[0]
	a.freeList = a.freeList[1:]
	a.isFree[frame] = false

	return frame, true
}

// Release gives a frame back. Releasing a frame that is already free is a
// bug in the caller.
func (a *Allocator) Release(frame int) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if frame < 0 || frame >= len(a.isFree) {
		log.Panicf("releasing frame %d out of range", frame)
	}

	if a.isFree[frame] {
		log.Panicf("frame %d released twice", frame)
	}

	a.isFree[frame] = true
	a.freeList = append(a.freeList, frame)
}

// IsFree tells if the frame is currently on the free list.
func (a *Allocator) IsFree(frame int) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.isFree[frame]
}

// NumFree returns the number of frames on the free list.
func (a *Allocator) NumFree() int {
	a.lock.Lock()
	defer a.lock.Unlock()

	return len(a.freeList)
}
