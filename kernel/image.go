package kernel

import (
	"fmt"

	"github.com/sarchlab/pagingsim/mem/vm"
)

// An Image is an executable kept in memory. Its sections are laid out one
// after another from page 0.
type Image struct {
	pageSize int
	sections []*ImageSection
	numPages int
}

// NewImage creates an empty image for the given page size.
func NewImage(pageSize int) *Image {
	if pageSize <= 0 {
		panic("page size must be positive")
	}

	return &Image{pageSize: pageSize}
}

// AddSection appends a section that holds data. The last page of the section
// is padded with zeros.
func (img *Image) AddSection(name string, readOnly bool, data []byte) *Image {
	length := (len(data) + img.pageSize - 1) / img.pageSize
	if length == 0 {
		length = 1
	}

	img.sections = append(img.sections, &ImageSection{
		name:     name,
		firstVPN: img.numPages,
		length:   length,
		readOnly: readOnly,
		data:     append([]byte(nil), data...),
		pageSize: img.pageSize,
	})
	img.numPages += length

	return img
}

// NumSections returns the number of sections.
func (img *Image) NumSections() int {
	return len(img.sections)
}

// Section returns section i.
func (img *Image) Section(i int) vm.Section {
	return img.sections[i]
}

// NumPages returns the number of pages covered by the sections.
func (img *Image) NumPages() int {
	return img.numPages
}

// An ImageSection is a section of an Image.
type ImageSection struct {
	name     string
	firstVPN int
	length   int
	readOnly bool
	data     []byte
	pageSize int
}

// Name returns the section name.
func (s *ImageSection) Name() string {
	return s.name
}

// FirstVPN returns the page the section starts at.
func (s *ImageSection) FirstVPN() int {
	return s.firstVPN
}

// Length returns the number of pages.
func (s *ImageSection) Length() int {
	return s.length
}

// ReadOnly tells if the section is read-only.
func (s *ImageSection) ReadOnly() bool {
	return s.readOnly
}

// LoadPage copies one page of the section into dst.
func (s *ImageSection) LoadPage(pageWithinSection int, dst []byte) error {
	if pageWithinSection < 0 || pageWithinSection >= s.length {
		return fmt.Errorf("page %d is beyond section %s", pageWithinSection, s.name)
	}

	if len(dst) != s.pageSize {
		return fmt.Errorf("buffer of %d bytes does not hold a page", len(dst))
	}

	clear(dst)

	start := pageWithinSection * s.pageSize
	end := min(start+s.pageSize, len(s.data))

	if start < end {
		copy(dst, s.data[start:end])
	}

	return nil
}
