// Package riscv implements a RV64IMC interpreter: the register file, flat memory, an
// instruction decode/dispatch loop, an ELF64 program loader, and the ecall trap surface a
// host installs to answer guest syscalls.
package riscv

// NumRegisters is the size of the RISC-V integer register file, x0..x31.
const NumRegisters = 32

// Integer register indices, named per the standard ABI.
const (
	Zero = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0 // also FP
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

var registerNames = [NumRegisters]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegisterName returns the ABI name of register index r, or "?" if out of range.
func RegisterName(r int) string {
	if r < 0 || r >= NumRegisters {
		return "?"
	}
	return registerNames[r]
}
