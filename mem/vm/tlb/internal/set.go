// Package internal provides the line storage of a TLB.
package internal

import (
	"github.com/sarchlab/pagingsim/mem/vm"
)

// A Set holds a fixed number of lines. A TLB is fully associative, so a TLB
// has exactly one set.
type Set interface {
	NumWays() int
	Lookup(vpn int) (wayID int, page vm.Page, found bool)
	Line(wayID int) vm.Page
	Update(wayID int, page vm.Page)
	Invalidate(wayID int) vm.Page
	Evict() (wayID int)
}

// NewSet creates a new set with all the lines invalid.
func NewSet(numWays int) Set {
	if numWays <= 0 {
		panic("a set must have at least one way")
	}

	s := &setImpl{
		blocks:       make([]vm.Page, numWays),
		lastReplaced: numWays - 1,
	}

	for i := range s.blocks {
		s.blocks[i] = vm.Page{VPN: -1, Frame: vm.NoFrame}
	}

	return s
}

type setImpl struct {
	blocks       []vm.Page
	lastReplaced int
}

func (s *setImpl) NumWays() int {
	return len(s.blocks)
}

// Lookup finds the valid line that translates vpn.
func (s *setImpl) Lookup(vpn int) (wayID int, page vm.Page, found bool) {
	for i, b := range s.blocks {
		if b.Valid && b.VPN == vpn {
			return i, b, true
		}
	}

	return 0, vm.Page{}, false
}

func (s *setImpl) Line(wayID int) vm.Page {
	return s.blocks[wayID]
}

func (s *setImpl) Update(wayID int, page vm.Page) {
	s.blocks[wayID] = page
}

// Invalidate clears a line and returns its content before the invalidation.
func (s *setImpl) Invalidate(wayID int) vm.Page {
	old := s.blocks[wayID]
	s.blocks[wayID].Valid = false

	return old
}

// Evict picks the line to replace. Lines are visited round-robin starting
// after the last one replaced. An invalid line is taken first; if there is
// none, the next line in the round-robin order is.
func (s *setImpl) Evict() (wayID int) {
	n := len(s.blocks)

	for i := 1; i <= n; i++ {
		way := (s.lastReplaced + i) % n
		if !s.blocks[way].Valid {
			s.lastReplaced = way
			return way
		}
	}

	s.lastReplaced = (s.lastReplaced + 1) % n

	return s.lastReplaced
}
