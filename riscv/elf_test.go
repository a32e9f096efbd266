package riscv

import (
	"encoding/binary"
	"testing"
)

// buildTestELF64 assembles a minimal well-formed ELF64 image with a single PT_LOAD
// segment: header, one program header, then code. entry and vaddr are the same address;
// memSz may exceed len(code) to exercise the bss zero-fill path.
func buildTestELF64(vaddr uint64, code []byte, memSz uint64) []byte {
	const (
		headerSize = 64
		phdrOffset = 64
		phdrSize   = 56
		codeOffset = phdrOffset + phdrSize
	)

	buf := make([]byte, codeOffset+len(code))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB

	le := binary.LittleEndian
	le.PutUint64(buf[24:32], vaddr)          // e_entry
	le.PutUint64(buf[32:40], phdrOffset)     // e_phoff
	le.PutUint16(buf[54:56], phdrSize)       // e_phentsize
	le.PutUint16(buf[56:58], 1)              // e_phnum

	p := buf[phdrOffset : phdrOffset+phdrSize]
	le.PutUint32(p[0:4], 1) // PT_LOAD
	le.PutUint32(p[4:8], 7) // flags (rwx, unchecked by this loader)
	le.PutUint64(p[8:16], codeOffset)
	le.PutUint64(p[16:24], vaddr)
	le.PutUint64(p[24:32], vaddr)
	le.PutUint64(p[32:40], uint64(len(code)))
	le.PutUint64(p[40:48], memSz)
	le.PutUint64(p[48:56], 0x1000)

	copy(buf[codeOffset:], code)
	return buf
}

func TestLoadSegmentsMapsCodeAndZerosBss(t *testing.T) {
	code := []byte{0x13, 0x05, 0x50, 0x00, 0x67, 0x80, 0x00, 0x00} // addi a0,zero,5 ; ret
	data := buildTestELF64(0x1000, code, uint64(len(code))+8)

	mem := NewFlatMemory(8192)
	entry, err := loadSegments(mem, data)
	if err != nil {
		t.Fatalf("loadSegments: %v", err)
	}
	if entry != 0x1000 {
		t.Fatalf("entry = 0x%x, want 0x1000", entry)
	}

	word, err := mem.Load32(0x1000)
	if err != nil {
		t.Fatalf("load mapped code: %v", err)
	}
	if word != 0x00500513 {
		t.Fatalf("mapped word = 0x%x, want 0x00500513", word)
	}

	tail, err := mem.Load64(0x1000 + uint64(len(code)))
	if err != nil {
		t.Fatalf("load bss tail: %v", err)
	}
	if tail != 0 {
		t.Fatalf("bss tail = 0x%x, want 0", tail)
	}
}

func TestLoadSegmentsRejectsNonELF(t *testing.T) {
	mem := NewFlatMemory(4096)
	if _, err := loadSegments(mem, []byte("not an elf")); err == nil {
		t.Fatal("expected an error for a non-ELF image")
	}
}

func TestMachineLoadProgramRunsToExit(t *testing.T) {
	code := []byte{0x13, 0x05, 0x50, 0x00, 0x67, 0x80, 0x00, 0x00} // addi a0,zero,5 ; ret
	data := buildTestELF64(0x1000, code, uint64(len(code)))

	mem := NewFlatMemory(1 << 16)
	m := NewMachine(mem, ISAImc, Version2, 0)
	m.ExitAddress = 0xffffff00

	if err := m.LoadProgram(data, [][]byte{[]byte("prog"), []byte("0xdead")}); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	if m.PC != 0x1000 {
		t.Fatalf("PC = 0x%x, want 0x1000", m.PC)
	}
	if m.Regs[RA] != m.ExitAddress {
		t.Fatalf("RA = 0x%x, want ExitAddress 0x%x", m.Regs[RA], m.ExitAddress)
	}

	code8, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code8 != 5 {
		t.Fatalf("exit code = %d, want 5", code8)
	}
}
