// Package swap provides the backing area that evicted pages are written to.
package swap

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/sarchlab/pagingsim/mem/vm"
)

// A Medium is where the slots are physically kept. Slot i occupies bytes
// [i*slotSize, (i+1)*slotSize). There is no header.
type Medium interface {
	io.ReaderAt
	io.WriterAt
}

// A Store manages the slots of a medium. Slot liveness is only tracked in
// memory. The table of slots grows when no slot is free and never shrinks.
//
// All the I/O is serialized by a single lock.
type Store struct {
	lock     sync.Mutex
	medium   Medium
	slotSize int
	used     []bool
	closer   func() error
}

// NewStore creates a store over the medium.
func NewStore(medium Medium, slotSize int) *Store {
	if slotSize <= 0 {
		log.Panicf("invalid slot size %d", slotSize)
	}

	return &Store{
		medium:   medium,
		slotSize: slotSize,
	}
}

// SlotSize returns the number of bytes of a slot.
func (s *Store) SlotSize() int {
	return s.slotSize
}

// WriteOut copies data, which must be exactly one slot long, into a free slot
// and returns the slot.
func (s *Store) WriteOut(data []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.mustBeSlotSized(data)

	slot := s.findFreeSlot()

	_, err := s.medium.WriteAt(data, s.offset(slot))
	if err != nil {
		return vm.NoSlot, fmt.Errorf("%w: writing swap slot %d: %v",
			vm.ErrBackingStore, slot, err)
	}

	s.used[slot] = true

	return slot, nil
}

func (s *Store) findFreeSlot() int {
	for i, used := range s.used {
		if !used {
			return i
		}
	}

	s.used = append(s.used, false)

	return len(s.used) - 1
}

// ReadIn copies the content of a slot into dst and frees the slot: the copy
// in dst is authoritative from now on.
func (s *Store) ReadIn(slot int, dst []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.mustBeSlotSized(dst)
	s.slotMustBeUsed(slot)

	_, err := s.medium.ReadAt(dst, s.offset(slot))
	if err != nil {
		return fmt.Errorf("%w: reading swap slot %d: %v",
			vm.ErrBackingStore, slot, err)
	}

	s.used[slot] = false

	return nil
}

// Free gives back a slot whose content is no longer needed.
func (s *Store) Free(slot int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.slotMustBeUsed(slot)

	s.used[slot] = false
}

// IsUsed tells if a slot currently holds the data of an evicted page.
func (s *Store) IsUsed(slot int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return slot >= 0 && slot < len(s.used) && s.used[slot]
}

// NumSlots returns the number of slots ever created.
func (s *Store) NumSlots() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.used)
}

// NumUsed returns the number of slots holding data.
func (s *Store) NumUsed() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := 0
	for _, used := range s.used {
		if used {
			n++
		}
	}

	return n
}

// Close discards the medium. The store must not be used afterwards.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.used = nil

	if s.closer == nil {
		return nil
	}

	closer := s.closer
	s.closer = nil

	return closer()
}

func (s *Store) offset(slot int) int64 {
	return int64(slot) * int64(s.slotSize)
}

func (s *Store) mustBeSlotSized(buf []byte) {
	if len(buf) != s.slotSize {
		log.Panicf("buffer of %d bytes does not match slot size %d",
			len(buf), s.slotSize)
	}
}

func (s *Store) slotMustBeUsed(slot int) {
	if slot < 0 || slot >= len(s.used) || !s.used[slot] {
		log.Panicf("swap slot %d is not in use", slot)
	}
}
