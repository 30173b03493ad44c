package swap

import (
	"errors"
	"fmt"
	"os"
)

// DefaultFileName is the name of the swap file created at boot.
const DefaultFileName = "pagingsim.swap"

// CreateFile creates, or truncates, the swap file at path and returns a store
// over it. Closing the store removes the file.
func CreateFile(path string, slotSize int) (*Store, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating swap file: %w", err)
	}

	s := NewStore(f, slotSize)
	s.closer = func() error {
		return errors.Join(f.Close(), os.Remove(path))
	}

	return s, nil
}
