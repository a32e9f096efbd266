package riscv

import "testing"

const testExitAddress = 0x2000

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	mem := NewFlatMemory(4096)
	m := NewMachine(mem, ISAImc, Version2, 0)
	m.ExitAddress = testExitAddress
	m.Regs[RA] = testExitAddress
	return m
}

func storeWord(t *testing.T, m *Machine, addr uint64, word uint32) {
	t.Helper()
	if err := m.Mem.Store32(addr, word); err != nil {
		t.Fatalf("store word at 0x%x: %v", addr, err)
	}
}

func storeHalf(t *testing.T, m *Machine, addr uint64, half uint16) {
	t.Helper()
	if err := m.Mem.Store16(addr, half); err != nil {
		t.Fatalf("store half at 0x%x: %v", addr, err)
	}
}

func TestAddiThenRet(t *testing.T) {
	m := newTestMachine(t)
	storeWord(t, m, 0, 0x00500513) // addi a0, zero, 5
	storeWord(t, m, 4, 0x00008067) // ret

	code, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}

func TestAddRegisters(t *testing.T) {
	m := newTestMachine(t)
	storeWord(t, m, 0, 0x00200513)  // addi a0, zero, 2
	storeWord(t, m, 4, 0x00300593)  // addi a1, zero, 3
	storeWord(t, m, 8, 0x00b50533)  // add a0, a0, a1
	storeWord(t, m, 12, 0x00008067) // ret

	code, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}

func TestBranchTakenSkipsInstruction(t *testing.T) {
	m := newTestMachine(t)
	storeWord(t, m, 0, 0x00100513)  // addi a0, zero, 1
	storeWord(t, m, 4, 0x00100593)  // addi a1, zero, 1
	storeWord(t, m, 8, 0x00b50463)  // beq a0, a1, +8
	storeWord(t, m, 12, 0x06300513) // addi a0, zero, 99 (skipped)
	storeWord(t, m, 16, 0x00008067) // ret

	code, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (branch should have skipped the overwrite)", code)
	}
}

func TestBranchNotTakenFallsThrough(t *testing.T) {
	m := newTestMachine(t)
	storeWord(t, m, 0, 0x00100513)  // addi a0, zero, 1
	storeWord(t, m, 4, 0x00200593)  // addi a1, zero, 2
	storeWord(t, m, 8, 0x00b50463)  // beq a0, a1, +8 (not taken)
	storeWord(t, m, 12, 0x06300513) // addi a0, zero, 99
	storeWord(t, m, 16, 0x00008067) // ret

	code, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 99 {
		t.Fatalf("exit code = %d, want 99", code)
	}
}

func TestCompressedLiAndJr(t *testing.T) {
	m := newTestMachine(t)
	storeHalf(t, m, 0, 0x4515) // c.li a0, 5
	storeHalf(t, m, 2, 0x8082) // c.jr ra

	code, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}

type stubSyscalls struct {
	calls []uint64
}

func (s *stubSyscalls) Ecall(m *Machine) (bool, error) {
	no := m.reg(A7)
	s.calls = append(s.calls, no)
	switch no {
	case 1234:
		m.setReg(A0, 42)
		return true, nil
	default:
		return false, nil
	}
}

func TestEcallDispatchesToSyscallHandler(t *testing.T) {
	m := newTestMachine(t)
	syscalls := &stubSyscalls{}
	m.Syscalls = syscalls

	storeWord(t, m, 0, 0x4d200893) // addi a7, zero, 1234
	storeWord(t, m, 4, 0x00000073) // ecall
	storeWord(t, m, 8, 0x00008067) // ret

	code, err := m.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 42 {
		t.Fatalf("exit code = %d, want 42 (set by syscall handler)", code)
	}
	if len(syscalls.calls) != 1 || syscalls.calls[0] != 1234 {
		t.Fatalf("unexpected syscalls observed: %v", syscalls.calls)
	}
}

func TestUnhandledSyscallIsFatal(t *testing.T) {
	m := newTestMachine(t)
	m.Syscalls = &stubSyscalls{}

	storeWord(t, m, 0, 0x00100893) // addi a7, zero, 1 (never handled by the stub)
	storeWord(t, m, 4, 0x00000073) // ecall

	if _, err := m.Run(); err == nil {
		t.Fatal("expected an error for an unhandled syscall number")
	}
}

func TestOutOfBoundsLoadIsFatal(t *testing.T) {
	m := newTestMachine(t)
	// lw a0, 0(a1) with a1 pointing far past the end of a 4096 byte memory.
	storeWord(t, m, 0, 0x100005b7) // lui a1, 0x10000 (a1 = 0x10000000)
	storeWord(t, m, 4, 0x0005a503) // lw a0, 0(a1)

	if _, err := m.Run(); err == nil {
		t.Fatal("expected an out-of-bounds memory error")
	}
}
