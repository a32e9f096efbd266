package riscv

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrNotELF64 is returned when a guest binary does not start with a 64-bit little-endian
// ELF magic this loader understands.
var ErrNotELF64 = errors.New("not a 64-bit little-endian ELF")

const (
	elfMagic    = "\x7fELF"
	elfClass64  = 2
	elfDataLSB  = 1
	elfPTLoad   = 1
	elfHeaderSz = 64
	phdrSize    = 56
)

type elf64Header struct {
	Entry   uint64
	PhOff   uint64
	PhEntSz uint16
	PhNum   uint16
}

type elf64Phdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

func parseELF64Header(data []byte) (elf64Header, error) {
	var h elf64Header
	if len(data) < elfHeaderSz {
		return h, errors.Wrap(ErrNotELF64, "truncated header")
	}
	if string(data[:4]) != elfMagic {
		return h, ErrNotELF64
	}
	if data[4] != elfClass64 || data[5] != elfDataLSB {
		return h, ErrNotELF64
	}

	r := bytes.NewReader(data[24:])
	var entry, phoff, shoff uint64
	var flags uint32
	var ehsize, phentsize, phnum, shentsize, shnum, shstrndx uint16

	fields := []interface{}{&entry, &phoff, &shoff, &flags, &ehsize, &phentsize, &phnum, &shentsize, &shnum, &shstrndx}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return h, errors.Wrap(err, "read elf header")
		}
	}

	h.Entry = entry
	h.PhOff = phoff
	h.PhEntSz = phentsize
	h.PhNum = phnum
	return h, nil
}

func parseELF64Phdr(data []byte, offset uint64) (elf64Phdr, error) {
	var p elf64Phdr
	if offset+phdrSize > uint64(len(data)) {
		return p, errors.Wrap(ErrNotELF64, "truncated program header")
	}

	r := bytes.NewReader(data[offset : offset+phdrSize])
	if err := binary.Read(r, binary.LittleEndian, &p.Type); err != nil {
		return p, err
	}
	if err := binary.Read(r, binary.LittleEndian, &p.Flags); err != nil {
		return p, err
	}
	for _, f := range []*uint64{&p.Offset, &p.VAddr, &p.PAddr, &p.FileSz, &p.MemSz, &p.Align} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return p, err
		}
	}
	return p, nil
}

// loadSegments maps every PT_LOAD segment of an ELF64 image into mem and returns the
// entry point.
func loadSegments(mem Memory, data []byte) (uint64, error) {
	header, err := parseELF64Header(data)
	if err != nil {
		return 0, err
	}

	for i := uint16(0); i < header.PhNum; i++ {
		offset := header.PhOff + uint64(i)*uint64(header.PhEntSz)
		phdr, err := parseELF64Phdr(data, offset)
		if err != nil {
			return 0, err
		}
		if phdr.Type != elfPTLoad {
			continue
		}
		if phdr.Offset+phdr.FileSz > uint64(len(data)) {
			return 0, errors.Wrap(ErrNotELF64, "segment extends past file end")
		}

		segment := data[phdr.Offset : phdr.Offset+phdr.FileSz]
		if err := mem.StoreBytes(phdr.VAddr, segment); err != nil {
			return 0, errors.Wrap(err, "map PT_LOAD segment")
		}

		if phdr.MemSz > phdr.FileSz {
			zeros := make([]byte, phdr.MemSz-phdr.FileSz)
			if err := mem.StoreBytes(phdr.VAddr+phdr.FileSz, zeros); err != nil {
				return 0, errors.Wrap(err, "zero bss tail")
			}
		}
	}

	return header.Entry, nil
}

// stackAlign rounds addr down to the next 16-byte boundary.
func stackAlign(addr uint64) uint64 {
	return addr &^ 0xf
}

// setupStack lays out argv per the System V ABI convention a C-runtime guest expects:
// strings at the top of the stack, then a NULL-terminated argv pointer array, then a
// single NULL environment pointer and a single AT_NULL auxv entry, with SP left pointing
// at argc.
func setupStack(mem Memory, top uint64, argv [][]byte) (uint64, error) {
	sp := top

	ptrs := make([]uint64, len(argv))
	for i, arg := range argv {
		s := append(append([]byte{}, arg...), 0)
		sp -= uint64(len(s))
		if err := mem.StoreBytes(sp, s); err != nil {
			return 0, errors.Wrap(err, "write argv string")
		}
		ptrs[i] = sp
	}

	sp = stackAlign(sp)

	// auxv: one AT_NULL (type 0, value 0) terminator, 16 bytes.
	sp -= 16
	if err := mem.Store64(sp, 0); err != nil {
		return 0, err
	}
	if err := mem.Store64(sp+8, 0); err != nil {
		return 0, err
	}

	// envp: single NULL terminator.
	sp -= 8
	if err := mem.Store64(sp, 0); err != nil {
		return 0, err
	}

	// argv pointer array, NULL terminated, in original order.
	sp -= 8 // NULL terminator
	if err := mem.Store64(sp, 0); err != nil {
		return 0, err
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		sp -= 8
		if err := mem.Store64(sp, ptrs[i]); err != nil {
			return 0, err
		}
	}

	// argc.
	sp -= 8
	if err := mem.Store64(sp, uint64(len(argv))); err != nil {
		return 0, err
	}

	return sp, nil
}

// LoadProgram maps elfData's PT_LOAD segments, sets up argv on the stack per the C
// runtime's expected layout, and positions PC/SP/RA for execution. RA is set to
// m.ExitAddress so a `ret` out of main halts the machine with its exit code in A0.
func (m *Machine) LoadProgram(elfData []byte, argv [][]byte) error {
	entry, err := loadSegments(m.Mem, elfData)
	if err != nil {
		return err
	}

	stackTop := stackAlign(m.Mem.Size() - 64)
	sp, err := setupStack(m.Mem, stackTop, argv)
	if err != nil {
		return err
	}

	m.PC = entry
	m.Regs[SP] = sp
	m.Regs[RA] = m.ExitAddress
	return nil
}
