package memory_test

import (
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagingsim/memory"
)

var _ = Describe("Storage", func() {
	It("should read and write in single unit", func() {
		storage := memory.NewStorage(4096)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(0, 2)
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := memory.NewStorage(8192)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should read zeros from untouched units", func() {
		storage := memory.NewStorageWithUnitSize(2048, 1024)

		res, err := storage.Read(1000, 100)

		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(make([]byte, 100)))
	})

	It("should return error if accessing over the capacity", func() {
		storage := memory.NewStorage(4096)
		err := storage.Write(4097, []byte{1})
		Expect(err).To(MatchError(memory.ErrBeyondCapacity))

		_, err = storage.Read(4096, 1)
		Expect(err).To(MatchError(memory.ErrBeyondCapacity))
	})

	Context("growable", func() {
		It("should grow with writes", func() {
			storage := memory.NewStorageWithUnitSize(0, 16)
			Expect(storage.Size()).To(Equal(uint64(0)))

			n, err := storage.WriteAt([]byte{9, 9}, 40)

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(storage.Size()).To(Equal(uint64(42)))
		})

		It("should report EOF when reading past the end", func() {
			storage := memory.NewStorageWithUnitSize(0, 16)
			_, _ = storage.WriteAt([]byte{1, 2, 3}, 0)

			buf := make([]byte, 4)
			_, err := storage.ReadAt(buf, 0)
			Expect(err).To(MatchError(io.EOF))

			buf = make([]byte, 3)
			n, err := storage.ReadAt(buf, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(buf).To(Equal([]byte{1, 2, 3}))
		})
	})
})
