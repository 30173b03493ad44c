package frame

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Allocator", func() {
	var a *Allocator

	BeforeEach(func() {
		a = NewAllocator(3)
	})

	It("should hand out every frame once", func() {
		for i := 0; i < 3; i++ {
			frame, ok := a.Acquire()
			Expect(ok).To(BeTrue())
			Expect(frame).To(Equal(i))
		}

		_, ok := a.Acquire()
		Expect(ok).To(BeFalse())
		Expect(a.NumFree()).To(Equal(0))
	})

	It("should reuse released frames", func() {
		a.Acquire()
		a.Acquire()
		a.Acquire()

		a.Release(1)

		Expect(a.IsFree(1)).To(BeTrue())
		frame, ok := a.Acquire()
		Expect(ok).To(BeTrue())
		Expect(frame).To(Equal(1))
	})

	It("should hand out the frame that has been free the longest", func() {
		a.Acquire()
		a.Acquire()
		a.Acquire()

		a.Release(2)
		a.Release(0)

		frame, _ := a.Acquire()
		Expect(frame).To(Equal(2))
		frame, _ = a.Acquire()
		Expect(frame).To(Equal(0))
	})

	It("should panic on double release", func() {
		Expect(func() { a.Release(0) }).To(Panic())
	})

	It("should panic on out of range release", func() {
		Expect(func() { a.Release(3) }).To(Panic())
	})

	It("should never hand out a frame twice under concurrency", func() {
		a = NewAllocator(64)

		var (
			wg   sync.WaitGroup
			lock sync.Mutex
			got  = make(map[int]int)
		)

		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					frame, ok := a.Acquire()
					if !ok {
						return
					}
					lock.Lock()
					got[frame]++
					lock.Unlock()
				}
			}()
		}
		wg.Wait()

		Expect(got).To(HaveLen(64))
		for _, n := range got {
			Expect(n).To(Equal(1))
		}
	})
})
