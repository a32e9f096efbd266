package riscv

import (
	"github.com/pkg/errors"
)

// CostModel estimates the number of cycles an instruction consumes, mirroring ckb-vm's
// instruction_cycle_func hook. It is consulted on every step so cycle accounting works
// even when MaxCycles is unbounded.
type CostModel func(raw uint32, compressed bool) uint64

// DefaultCostModel charges one cycle per instruction, compressed or not.
func DefaultCostModel(raw uint32, compressed bool) uint64 {
	return 1
}

// Machine is one RISC-V hart: its register file, program counter, memory, and the
// syscall handler answering its ECALL traps.
type Machine struct {
	Regs [NumRegisters]uint64
	PC   uint64

	Mem       Memory
	ISA       ISA
	Version   Version
	MaxCycles uint64
	Cycles    uint64
	CostModel CostModel
	Syscalls  Syscalls

	// ExitAddress is the program counter value that signals normal termination: the
	// convention is that RA is initialized to this address, so a `ret` out of main lands
	// here. The guest's exit code is then read from A0.
	ExitAddress uint64
}

// NewMachine builds a Machine over mem with the given ISA profile. A zero maxCycles means
// unlimited.
func NewMachine(mem Memory, isa ISA, version Version, maxCycles uint64) *Machine {
	return &Machine{
		Mem:       mem,
		ISA:       isa,
		Version:   version,
		MaxCycles: maxCycles,
		CostModel: DefaultCostModel,
	}
}

func (m *Machine) reg(i uint32) uint64 {
	if i == Zero {
		return 0
	}
	return m.Regs[i]
}

func (m *Machine) setReg(i uint32, v uint64) {
	if i == Zero {
		return
	}
	m.Regs[i] = v
}

func wrapIllegal(raw uint32, pc uint64) error {
	return errors.Wrapf(ErrIllegalInstruction, "0x%08x at pc 0x%x", raw, pc)
}

func errorsWrapUnhandled(syscallNo uint64) error {
	return errors.Wrapf(ErrUnhandledSyscall, "number %d", syscallNo)
}

// Step executes exactly one instruction, compressed or not, and advances PC.
func (m *Machine) Step() error {
	low, err := m.Mem.Load16(m.PC)
	if err != nil {
		return err
	}

	var nextPC uint64
	var raw uint32
	compressed := low&0x3 != 0x3

	if compressed {
		nextPC, err = m.execute16(low)
		raw = uint32(low)
	} else {
		high, lerr := m.Mem.Load16(m.PC + 2)
		if lerr != nil {
			return lerr
		}
		raw = uint32(low) | uint32(high)<<16
		nextPC, err = m.execute32(raw)
	}
	if err != nil {
		return err
	}

	if m.CostModel != nil {
		m.Cycles += m.CostModel(raw, compressed)
	}
	if m.MaxCycles != 0 && m.Cycles > m.MaxCycles {
		return ErrCycleLimit
	}

	m.PC = nextPC
	return nil
}

// Run steps the machine until it reaches ExitAddress, at which point it returns the exit
// code read from A0, or until a trap occurs.
func (m *Machine) Run() (int8, error) {
	for m.PC != m.ExitAddress {
		if err := m.Step(); err != nil {
			return 0, err
		}
	}
	return int8(m.Regs[A0]), nil
}
