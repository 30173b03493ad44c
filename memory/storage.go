// Package memory provides the byte storage of the simulated machine.
package memory

import (
	"errors"
	"io"
	"sync"
)

// ErrBeyondCapacity is returned when an access falls outside the storage.
var ErrBeyondCapacity = errors.New(
	"accessing address beyond the storage capacity")

// A Storage keeps the data of the guest system.
//
// A storage is an abstraction of all different type of storage including
// main memory and the swap medium.
//
// The storage implementation manages the storage in units. The unit is
// similar to the concept of page in memory management. For the units that
// are not touched by Read and Write function, no memory will be allocated.
//
// A Storage created with a zero capacity is growable: it accepts any address
// and its Size is the highest byte ever written.
type Storage struct {
	sync.RWMutex
	unitSize uint64
	capacity uint64
	size     uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity and a unit
// size of 4096 bytes.
func NewStorage(capacity uint64) *Storage {
	return NewStorageWithUnitSize(capacity, 4096)
}

// NewStorageWithUnitSize creates a storage whose allocation unit matches the
// given size. Physical memory uses the page size as its unit so that one
// frame is always backed by one unit.
func NewStorageWithUnitSize(capacity, unitSize uint64) *Storage {
	if unitSize == 0 {
		panic("unit size must not be 0")
	}

	storage := new(Storage)

	storage.unitSize = unitSize
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the capacity of the storage. 0 means growable.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// Size returns the number of bytes that can be read back from the storage.
func (s *Storage) Size() uint64 {
	s.RLock()
	defer s.RUnlock()

	if s.capacity > 0 {
		return s.capacity
	}

	return s.size
}

func (s *Storage) checkRange(address, length uint64) error {
	if s.capacity == 0 {
		return nil
	}

	if address+length > s.capacity {
		return ErrBeyondCapacity
	}

	return nil
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes a storage unit in the storage object.
func (s *Storage) createOrGetStorageUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	res := make([]byte, length)

	err := s.ReadInto(address, res)
	if err != nil {
		return nil, err
	}

	return res, nil
}

// ReadInto fills buf with the bytes starting at address.
func (s *Storage) ReadInto(address uint64, buf []byte) error {
	length := uint64(len(buf))

	err := s.checkRange(address, length)
	if err != nil {
		return err
	}

	s.RLock()
	defer s.RUnlock()

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < length {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := min(length-dataOffset, s.unitSize-inUnitAddr)

		unit, ok := s.data[baseAddr]
		if ok {
			copy(buf[dataOffset:dataOffset+lenToRead],
				unit[inUnitAddr:inUnitAddr+lenToRead])
		} else {
			clear(buf[dataOffset : dataOffset+lenToRead])
		}

		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	err := s.checkRange(address, uint64(len(data)))
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit := s.createOrGetStorageUnit(currAddr)

		_, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := min(uint64(len(data))-dataOffset, s.unitSize-inUnitAddr)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	s.size = max(s.size, currAddr)

	return nil
}

// ReadAt implements io.ReaderAt so that a Storage can serve as a swap medium.
func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrBeyondCapacity
	}

	if uint64(off)+uint64(len(p)) > s.Size() {
		return 0, io.EOF
	}

	err := s.ReadInto(uint64(off), p)
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// WriteAt implements io.WriterAt.
func (s *Storage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrBeyondCapacity
	}

	err := s.Write(uint64(off), p)
	if err != nil {
		return 0, err
	}

	return len(p), nil
}
