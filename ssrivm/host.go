package ssrivm

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/ckb-ecofund/ssri-runner-go/chainrpc"
	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/riscv"
	"github.com/ckb-ecofund/ssri-runner-go/ssrierr"
)

// DefaultMemorySize is the flat address space given to every guest: 4 MiB, matching the
// memory footprint a ckb-vm guest script is normally built against.
const DefaultMemorySize = 4 * 1024 * 1024

// exitAddress is an address no ELF segment ever maps to; RA is primed with it so a `ret`
// out of main halts the machine.
const exitAddress = 0xfffffffffffffff0

// Host drives one guest binary to completion and maps its outcome onto the three RPC
// result shapes: Ok(None), Ok(Some(bytes)), or one of the ssrierr.Error kinds.
type Host struct {
	// MemorySize overrides DefaultMemorySize when nonzero.
	MemorySize uint64
	// MaxCycles bounds execution; zero means unbounded.
	MaxCycles uint64
}

// NewHost builds a Host with the default memory size and an unbounded cycle budget.
func NewHost() *Host {
	return &Host{MemorySize: DefaultMemorySize}
}

// Run loads elfData as a guest program, runs it to completion against a syscall Context
// wired to chain, script, cell, and tx, and maps the result per the VM return contract:
//   - exit 0, no set_content call  -> (nil, false, nil)
//   - exit 0, set_content called   -> (bytes, true, nil)
//   - exit k != 0                  -> (nil, false, ssrierr.Script(k))
//   - any trap (bad memory access, unhandled syscall, chain error, malformed ELF)
//                                   -> (nil, false, ssrierr.VM(message))
func (h *Host) Run(ctx context.Context, chain *chainrpc.Client, script *ckbtypes.Script, cell *ckbtypes.CellOutputWithData, tx *ckbtypes.Transaction, elfData []byte, args [][]byte) ([]byte, bool, error) {
	memSize := h.MemorySize
	if memSize == 0 {
		memSize = DefaultMemorySize
	}

	mem := riscv.NewFlatMemory(memSize)
	// ISA profile is {IMC,B,MOP,A} and version 2 per the guest toolchain's target; the B,
	// MOP, and A bits are carried as metadata only, since this interpreter's decode tables
	// cover IMC. A guest that actually emits a B/MOP/A encoding fails as an illegal
	// instruction rather than silently misexecuting.
	isa := riscv.ISAImc | riscv.ISABitManip | riscv.ISAMacroOpFusion | riscv.ISAAtomic
	machine := riscv.NewMachine(mem, isa, riscv.Version2, h.MaxCycles)
	machine.ExitAddress = exitAddress
	machine.Regs[riscv.RA] = exitAddress

	syscallCtx := NewContext(ctx, chain, script, cell, tx)
	machine.Syscalls = syscallCtx

	// Each raw byte argument is converted to its lowercase ASCII hex form, no "0x" prefix,
	// matching the reference guest binaries' hex_decode(argv[i]) convention.
	argv := make([][]byte, 0, len(args)+1)
	argv = append(argv, []byte("ssri"))
	for _, a := range args {
		argv = append(argv, []byte(hex.EncodeToString(a)))
	}

	if err := machine.LoadProgram(elfData, argv); err != nil {
		return nil, false, ssrierr.VM(errors.Wrap(err, "load program").Error())
	}

	exitCode, err := machine.Run()
	if err != nil {
		return nil, false, ssrierr.VM(err.Error())
	}

	if exitCode != 0 {
		return nil, false, ssrierr.Script(exitCode)
	}

	content, hasContent := syscallCtx.Content()
	return content, hasContent, nil
}
