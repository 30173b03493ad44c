package swap

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/memory"
	"go.uber.org/mock/gomock"
)

func pageOf(b byte, size int) []byte {
	return bytes.Repeat([]byte{b}, size)
}

var _ = Describe("Store", func() {
	var (
		medium *memory.Storage
		store  *Store
	)

	BeforeEach(func() {
		medium = memory.NewStorageWithUnitSize(0, 16)
		store = NewStore(medium, 16)
	})

	It("should restore exactly what was written", func() {
		slot, err := store.WriteOut(pageOf(7, 16))
		Expect(err).NotTo(HaveOccurred())

		dst := make([]byte, 16)
		Expect(store.ReadIn(slot, dst)).To(Succeed())

		Expect(dst).To(Equal(pageOf(7, 16)))
	})

	It("should grow when no slot is free", func() {
		s0, _ := store.WriteOut(pageOf(1, 16))
		s1, _ := store.WriteOut(pageOf(2, 16))

		Expect(s0).To(Equal(0))
		Expect(s1).To(Equal(1))
		Expect(store.NumSlots()).To(Equal(2))
		Expect(medium.Size()).To(Equal(uint64(32)))
	})

	It("should free a slot once it is read in", func() {
		s0, _ := store.WriteOut(pageOf(1, 16))
		store.WriteOut(pageOf(2, 16))

		Expect(store.ReadIn(s0, make([]byte, 16))).To(Succeed())

		Expect(store.IsUsed(s0)).To(BeFalse())
		reused, _ := store.WriteOut(pageOf(3, 16))
		Expect(reused).To(Equal(s0))
		Expect(store.NumSlots()).To(Equal(2))
		Expect(store.NumUsed()).To(Equal(2))
	})

	It("should keep other slots intact", func() {
		s0, _ := store.WriteOut(pageOf(1, 16))
		s1, _ := store.WriteOut(pageOf(2, 16))
		store.Free(s0)
		store.WriteOut(pageOf(3, 16))

		dst := make([]byte, 16)
		Expect(store.ReadIn(s1, dst)).To(Succeed())
		Expect(dst).To(Equal(pageOf(2, 16)))
	})

	It("should panic when reading a free slot", func() {
		Expect(func() { store.ReadIn(0, make([]byte, 16)) }).To(Panic())
	})

	It("should panic when the buffer is not one slot long", func() {
		Expect(func() { store.WriteOut(make([]byte, 3)) }).To(Panic())
	})

	Context("failing medium", func() {
		var (
			mockCtrl *gomock.Controller
			failing  *MockMedium
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			failing = NewMockMedium(mockCtrl)
			store = NewStore(failing, 16)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should report a backing store failure on write", func() {
			failing.EXPECT().
				WriteAt(gomock.Any(), int64(0)).
				Return(0, errors.New("disk full"))

			slot, err := store.WriteOut(pageOf(1, 16))

			Expect(slot).To(Equal(vm.NoSlot))
			Expect(err).To(MatchError(vm.ErrBackingStore))
			Expect(store.NumUsed()).To(Equal(0))
		})

		It("should report a backing store failure on read", func() {
			failing.EXPECT().WriteAt(gomock.Any(), int64(0)).Return(16, nil)
			failing.EXPECT().
				ReadAt(gomock.Any(), int64(0)).
				Return(0, errors.New("bad sector"))

			slot, _ := store.WriteOut(pageOf(1, 16))
			err := store.ReadIn(slot, make([]byte, 16))

			Expect(err).To(MatchError(vm.ErrBackingStore))
		})
	})

	Context("file", func() {
		It("should truncate on create and remove on close", func() {
			path := filepath.Join(GinkgoT().TempDir(), DefaultFileName)
			Expect(os.WriteFile(path, []byte("stale"), 0o644)).To(Succeed())

			fileStore, err := CreateFile(path, 16)
			Expect(err).NotTo(HaveOccurred())

			info, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Size()).To(Equal(int64(0)))

			slot, err := fileStore.WriteOut(pageOf(5, 16))
			Expect(err).NotTo(HaveOccurred())
			dst := make([]byte, 16)
			Expect(fileStore.ReadIn(slot, dst)).To(Succeed())
			Expect(dst).To(Equal(pageOf(5, 16)))

			Expect(fileStore.Close()).To(Succeed())
			_, err = os.Stat(path)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})
})
