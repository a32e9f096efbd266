package riscv

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned for any access outside the machine's mapped memory.
var ErrOutOfBounds = errors.New("memory access out of bounds")

// ErrMisaligned names a misaligned memory access. FlatMemory never returns it: loads and
// stores of every width are accepted at any in-bounds address.
var ErrMisaligned = errors.New("misaligned memory access")

// Memory is the flat, byte-addressable address space a Machine executes against. Every
// load and store is bounds-checked; the caller is expected to wrap returned errors into a
// fatal VM trap.
type Memory interface {
	Load8(addr uint64) (uint8, error)
	Load16(addr uint64) (uint16, error)
	Load32(addr uint64) (uint32, error)
	Load64(addr uint64) (uint64, error)

	Store8(addr uint64, v uint8) error
	Store16(addr uint64, v uint16) error
	Store32(addr uint64, v uint32) error
	Store64(addr uint64, v uint64) error

	// LoadBytes copies length bytes starting at addr.
	LoadBytes(addr uint64, length uint64) ([]byte, error)
	// StoreBytes writes b starting at addr.
	StoreBytes(addr uint64, b []byte) error

	// Size returns the total addressable size of the memory.
	Size() uint64
}

// FlatMemory is a Memory backed by a single contiguous byte slice, addressed from zero.
type FlatMemory struct {
	data []byte
}

// NewFlatMemory allocates a FlatMemory of the given size, zero-filled.
func NewFlatMemory(size uint64) *FlatMemory {
	return &FlatMemory{data: make([]byte, size)}
}

func (m *FlatMemory) Size() uint64 {
	return uint64(len(m.data))
}

func (m *FlatMemory) bounds(addr, length uint64) error {
	if length == 0 {
		return nil
	}
	end := addr + length
	if end < addr || end > m.Size() {
		return errors.Wrapf(ErrOutOfBounds, "addr 0x%x length %d", addr, length)
	}
	return nil
}

func (m *FlatMemory) Load8(addr uint64) (uint8, error) {
	if err := m.bounds(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

func (m *FlatMemory) Load16(addr uint64) (uint16, error) {
	if err := m.bounds(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), nil
}

func (m *FlatMemory) Load32(addr uint64) (uint32, error) {
	if err := m.bounds(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[addr:]), nil
}

func (m *FlatMemory) Load64(addr uint64) (uint64, error) {
	if err := m.bounds(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), nil
}

func (m *FlatMemory) Store8(addr uint64, v uint8) error {
	if err := m.bounds(addr, 1); err != nil {
		return err
	}
	m.data[addr] = v
	return nil
}

func (m *FlatMemory) Store16(addr uint64, v uint16) error {
	if err := m.bounds(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
	return nil
}

func (m *FlatMemory) Store32(addr uint64, v uint32) error {
	if err := m.bounds(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:], v)
	return nil
}

func (m *FlatMemory) Store64(addr uint64, v uint64) error {
	if err := m.bounds(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[addr:], v)
	return nil
}

func (m *FlatMemory) LoadBytes(addr uint64, length uint64) ([]byte, error) {
	if err := m.bounds(addr, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[addr:addr+length])
	return out, nil
}

func (m *FlatMemory) StoreBytes(addr uint64, b []byte) error {
	if err := m.bounds(addr, uint64(len(b))); err != nil {
		return err
	}
	copy(m.data[addr:], b)
	return nil
}

// LoadCString reads a NUL-terminated byte string starting at addr, per the 2177 "debug"
// syscall's argument convention.
func (m *FlatMemory) LoadCString(addr uint64) ([]byte, error) {
	var buf []byte
	for {
		b, err := m.Load8(addr)
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return buf, nil
		}
		buf = append(buf, b)
		addr++
	}
}
