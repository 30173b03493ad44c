package internal

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pagingsim/mem/vm"
)

var _ = Describe("Set", func() {
	var s Set

	BeforeEach(func() {
		s = NewSet(3)
	})

	It("should start with every line invalid", func() {
		for i := 0; i < s.NumWays(); i++ {
			Expect(s.Line(i).Valid).To(BeFalse())
		}

		_, _, found := s.Lookup(0)
		Expect(found).To(BeFalse())
	})

	It("should panic with no way", func() {
		Expect(func() { NewSet(0) }).To(Panic())
	})

	It("should find an updated line", func() {
		s.Update(1, vm.Page{VPN: 7, Frame: 2, Valid: true})

		way, page, found := s.Lookup(7)

		Expect(found).To(BeTrue())
		Expect(way).To(Equal(1))
		Expect(page.Frame).To(Equal(2))
	})

	It("should not find an invalidated line", func() {
		s.Update(0, vm.Page{VPN: 7, Frame: 2, Valid: true, Dirty: true})

		old := s.Invalidate(0)

		Expect(old.Valid).To(BeTrue())
		Expect(old.Dirty).To(BeTrue())
		_, _, found := s.Lookup(7)
		Expect(found).To(BeFalse())
	})

	It("should take invalid lines before valid ones", func() {
		for vpn := 0; vpn < 3; vpn++ {
			way := s.Evict()
			Expect(way).To(Equal(vpn))
			s.Update(way, vm.Page{VPN: vpn, Valid: true})
		}

		s.Invalidate(1)

		Expect(s.Evict()).To(Equal(1))
	})

	It("should replace valid lines round-robin", func() {
		for way := 0; way < 3; way++ {
			s.Update(way, vm.Page{VPN: way, Valid: true})
		}

		Expect(s.Evict()).To(Equal(0))
		Expect(s.Evict()).To(Equal(1))
		Expect(s.Evict()).To(Equal(2))
		Expect(s.Evict()).To(Equal(0))
	})
})
