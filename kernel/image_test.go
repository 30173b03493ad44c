package kernel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Image", func() {
	It("should lay out the sections one after another", func() {
		img := NewImage(4).
			AddSection(".text", true, []byte("abcdefghi")).
			AddSection(".bss", false, nil)

		Expect(img.NumSections()).To(Equal(2))
		Expect(img.NumPages()).To(Equal(4))

		text := img.Section(0)
		Expect(text.Name()).To(Equal(".text"))
		Expect(text.FirstVPN()).To(Equal(0))
		Expect(text.Length()).To(Equal(3))
		Expect(text.ReadOnly()).To(BeTrue())

		bss := img.Section(1)
		Expect(bss.FirstVPN()).To(Equal(3))
		Expect(bss.Length()).To(Equal(1))
		Expect(bss.ReadOnly()).To(BeFalse())
	})

	It("should pad the last page with zeros", func() {
		img := NewImage(4).AddSection(".text", true, []byte("abcdefghi"))

		dst := []byte{9, 9, 9, 9}
		err := img.Section(0).LoadPage(2, dst)

		Expect(err).NotTo(HaveOccurred())
		Expect(dst).To(Equal([]byte{'i', 0, 0, 0}))
	})

	It("should fail to load a page beyond the section", func() {
		img := NewImage(4).AddSection(".text", true, []byte("abc"))

		err := img.Section(0).LoadPage(1, make([]byte, 4))

		Expect(err).To(HaveOccurred())
	})

	It("should fail to load into a buffer that is not a page", func() {
		img := NewImage(4).AddSection(".text", true, []byte("abc"))

		err := img.Section(0).LoadPage(0, make([]byte, 3))

		Expect(err).To(HaveOccurred())
	})
})
