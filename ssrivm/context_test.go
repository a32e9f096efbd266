package ssrivm

import (
	"context"
	"testing"

	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/hexutil"
	"github.com/ckb-ecofund/ssri-runner-go/riscv"
)

func newTestMachine(t *testing.T, syscalls riscv.Syscalls) *riscv.Machine {
	t.Helper()
	mem := riscv.NewFlatMemory(65536)
	m := riscv.NewMachine(mem, riscv.ISAImc, riscv.Version2, 0)
	m.Syscalls = syscalls
	return m
}

func sampleScript() *ckbtypes.Script {
	var codeHash ckbtypes.H256
	codeHash[0] = 0x42
	return &ckbtypes.Script{CodeHash: codeHash, HashType: 1, Args: hexutil.Bytes{0xaa, 0xbb}}
}

func TestLoadScriptWritesBytesAndTrueSize(t *testing.T) {
	script := sampleScript()
	ctx := NewContext(context.Background(), nil, script, nil, nil)
	m := newTestMachine(t, ctx)

	const bufAddr, lenPtr = 0x100, 0x200
	capacity := uint64(len(script.Bytes()))
	if err := m.Mem.Store64(lenPtr, capacity); err != nil {
		t.Fatalf("store capacity: %v", err)
	}
	m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2] = bufAddr, lenPtr, 0
	m.Regs[riscv.A7] = sysLoadScript

	handled, err := ctx.Ecall(m)
	if !handled || err != nil {
		t.Fatalf("Ecall: handled=%v err=%v", handled, err)
	}

	gotLen, err := m.Mem.Load64(lenPtr)
	if err != nil || gotLen != capacity {
		t.Fatalf("len_ptr = %d, err %v; want %d", gotLen, err, capacity)
	}

	got, err := m.Mem.LoadBytes(bufAddr, capacity)
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	want := script.Bytes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %x want %x", i, got[i], want[i])
		}
	}
}

func TestLoadScriptMissingIsFatal(t *testing.T) {
	ctx := NewContext(context.Background(), nil, nil, nil, nil)
	m := newTestMachine(t, ctx)
	m.Regs[riscv.A7] = sysLoadScript

	if _, err := ctx.Ecall(m); err == nil {
		t.Fatal("expected an error when no script is configured")
	}
}

func TestLoadCellRequiresGroupInput(t *testing.T) {
	cell := &ckbtypes.CellOutputWithData{CellOutput: ckbtypes.CellOutput{Capacity: 500, Lock: *sampleScript()}}
	ctx := NewContext(context.Background(), nil, nil, cell, nil)
	m := newTestMachine(t, ctx)

	if err := m.Mem.Store64(0x200, 64); err != nil {
		t.Fatalf("store capacity: %v", err)
	}
	m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2] = 0x100, 0x200, 0
	m.Regs[riscv.A3], m.Regs[riscv.A4] = 0, uint64(SourceInput) // wrong source
	m.Regs[riscv.A7] = sysLoadCell

	if _, err := ctx.Ecall(m); err == nil {
		t.Fatal("expected an error for a non-group-input cell address")
	}

	m.Regs[riscv.A4] = uint64(SourceGroupInput)
	if _, err := ctx.Ecall(m); err != nil {
		t.Fatalf("expected group input load to succeed: %v", err)
	}
}

func TestSetContentThenContent(t *testing.T) {
	ctx := NewContext(context.Background(), nil, nil, nil, nil)
	m := newTestMachine(t, ctx)

	payload := []byte("published result")
	const addr = 0x300
	if err := m.Mem.StoreBytes(addr, payload); err != nil {
		t.Fatalf("store payload: %v", err)
	}

	const lenAddr = 0x400
	if err := m.Mem.Store64(lenAddr, uint64(len(payload))); err != nil {
		t.Fatalf("store length: %v", err)
	}

	m.Regs[riscv.A0], m.Regs[riscv.A1] = addr, lenAddr
	m.Regs[riscv.A7] = sysSetContent

	if _, err := ctx.Ecall(m); err != nil {
		t.Fatalf("set_content: %v", err)
	}

	content, ok := ctx.Content()
	if !ok {
		t.Fatal("expected Content to report set_content was called")
	}
	if string(content) != string(payload) {
		t.Fatalf("content = %q, want %q", content, payload)
	}
}

func TestSetContentLastWriteWins(t *testing.T) {
	ctx := NewContext(context.Background(), nil, nil, nil, nil)
	m := newTestMachine(t, ctx)

	write := func(addr uint64, payload []byte) {
		if err := m.Mem.StoreBytes(addr, payload); err != nil {
			t.Fatalf("store payload: %v", err)
		}
		if err := m.Mem.Store64(addr+1000, uint64(len(payload))); err != nil {
			t.Fatalf("store length: %v", err)
		}
		m.Regs[riscv.A0], m.Regs[riscv.A1] = addr, addr+1000
		m.Regs[riscv.A7] = sysSetContent
		if _, err := ctx.Ecall(m); err != nil {
			t.Fatalf("set_content: %v", err)
		}
	}

	write(0x500, []byte("first"))
	write(0x600, []byte("second"))

	content, ok := ctx.Content()
	if !ok || string(content) != "second" {
		t.Fatalf("content = %q ok=%v, want %q", content, ok, "second")
	}
}

func TestVersionSyscall(t *testing.T) {
	ctx := NewContext(context.Background(), nil, nil, nil, nil)
	m := newTestMachine(t, ctx)
	m.Regs[riscv.A7] = sysVersion

	handled, err := ctx.Ecall(m)
	if !handled || err != nil {
		t.Fatalf("Ecall: handled=%v err=%v", handled, err)
	}
	if m.Regs[riscv.A0] != versionSentinel {
		t.Fatalf("A0 = 0x%x, want 0x%x", m.Regs[riscv.A0], versionSentinel)
	}
}

func TestUnknownSyscallIsUnhandled(t *testing.T) {
	ctx := NewContext(context.Background(), nil, nil, nil, nil)
	m := newTestMachine(t, ctx)
	m.Regs[riscv.A7] = 9999

	handled, err := ctx.Ecall(m)
	if handled || err != nil {
		t.Fatalf("Ecall: handled=%v err=%v, want false/nil", handled, err)
	}
}

func TestLoadCellByFieldCapacity(t *testing.T) {
	cell := &ckbtypes.CellOutputWithData{CellOutput: ckbtypes.CellOutput{Capacity: 12345, Lock: *sampleScript()}}
	ctx := NewContext(context.Background(), nil, nil, cell, nil)
	m := newTestMachine(t, ctx)

	if err := m.Mem.Store64(0x200, 8); err != nil {
		t.Fatalf("store capacity: %v", err)
	}
	m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2] = 0x100, 0x200, 0
	m.Regs[riscv.A3], m.Regs[riscv.A4] = 0, uint64(SourceGroupInput)
	m.Regs[riscv.A5] = uint64(FieldCapacity)
	m.Regs[riscv.A7] = sysLoadCellByField

	if _, err := ctx.Ecall(m); err != nil {
		t.Fatalf("load_cell_by_field: %v", err)
	}

	got, err := m.Mem.Load64(0x100)
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	if got != 12345 {
		t.Fatalf("capacity = %d, want 12345", got)
	}
}
