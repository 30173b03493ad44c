package vm

// A Section is a contiguous code or data region of an executable image.
type Section interface {
	// Name returns the section name, such as ".text".
	Name() string

	// FirstVPN returns the virtual page that the section starts at.
	FirstVPN() int

	// Length returns the number of pages of the section.
	Length() int

	// ReadOnly tells if the pages of the section must never be written.
	ReadOnly() bool

	// LoadPage copies page number pageWithinSection into dst. dst is exactly
	// one page long.
	LoadPage(pageWithinSection int, dst []byte) error
}

// An Executable is the parsed executable image that the address space of a
// process is built from.
type Executable interface {
	NumSections() int
	Section(i int) Section
}

// LoadStrategy selects how the pages of an address space get their frames.
type LoadStrategy int

// The supported load strategies.
const (
	// DemandLoad leaves every page invalid until it is touched.
	DemandLoad LoadStrategy = iota

	// EagerLoad faults in every page when the address space is built.
	EagerLoad
)

func (s LoadStrategy) String() string {
	switch s {
	case DemandLoad:
		return "demand"
	case EagerLoad:
		return "eager"
	default:
		return "unknown"
	}
}
