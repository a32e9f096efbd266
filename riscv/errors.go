package riscv

import "github.com/pkg/errors"

// ErrUnhandledSyscall is wrapped into a trap when a Syscalls handler reports a7 as not
// recognized.
var ErrUnhandledSyscall = errors.New("unhandled syscall")

// ErrBreakpoint is the trap raised by an EBREAK instruction reached outside of a debugger.
var ErrBreakpoint = errors.New("ebreak trap")

// ErrIllegalInstruction is raised for any bit pattern this decoder does not recognize.
var ErrIllegalInstruction = errors.New("illegal instruction")

// ErrCycleLimit is raised when a Machine's configured cycle budget is exhausted.
var ErrCycleLimit = errors.New("cycle limit exceeded")
