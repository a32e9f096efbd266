// Package ssrivm implements the syscall table a guest script traps into (ssrivm.Context)
// and the VM host that drives one execution to completion (ssrivm.Host).
package ssrivm

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ckb-ecofund/ssri-runner-go/chainrpc"
	"github.com/ckb-ecofund/ssri-runner-go/ckbhash"
	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/logger"
	"github.com/ckb-ecofund/ssri-runner-go/riscv"
	"github.com/ckb-ecofund/ssri-runner-go/threads"
)

// SubSystem is used by the logger package.
const SubSystem = "SSRIVM"

// Syscall numbers, bit-exact per the guest ABI.
const (
	sysVersion                = 2041
	sysLoadScript             = 2052
	sysLoadScriptHash         = 2061
	sysLoadCell               = 2071
	sysLoadCellByField        = 2081
	sysLoadCellData           = 2091
	sysSetContent             = 2103
	sysDebug                  = 2177
	sysFindOutPointByType     = 2277
	sysFindCellByOutPoint     = 2287
	sysFindCellDataByOutPoint = 2297
)

// Source selects which list a cell index is drawn from. GroupInput is the only value
// accepted by the cell-reading syscalls; every other combination is a fatal VM error.
type Source uint64

const (
	SourceInput       Source = 1
	SourceOutput      Source = 2
	SourceCellDep     Source = 3
	SourceHeaderDep   Source = 4
	SourceGroupInput  Source = 0x0100000000000001
	SourceGroupOutput Source = 0x0100000000000002
)

// Field selects which property of a cell load_cell_by_field emits.
type Field uint64

const (
	FieldCapacity         Field = 0
	FieldDataHash         Field = 1
	FieldLock             Field = 2
	FieldLockHash         Field = 3
	FieldType             Field = 4
	FieldTypeHash         Field = 5
	FieldOccupiedCapacity Field = 6
)

// versionSentinel is the value 2041 reports: this host is the SSRI runner, not a
// consensus VM.
const versionSentinel = ^uint64(0)

// Context is the per-execution syscall handler: it owns the current script/cell/tx views
// a guest can read and the pending-result slot it can write, plus a handle to the chain
// client for the three "find" syscalls. One Context is created per Host.Run call and
// discarded afterward; it implements riscv.Syscalls.
type Context struct {
	mu      sync.Mutex
	content *[]byte

	ctx    context.Context
	script *ckbtypes.Script
	cell   *ckbtypes.CellOutputWithData
	tx     *ckbtypes.Transaction

	chain *chainrpc.Client
}

// NewContext builds a Context for one execution against the request's ctx (used for
// logging the debug syscall and tracing chain lookups). script, cell, and tx are the
// optional request-level overrides; chain is used by the three find_* syscalls.
func NewContext(ctx context.Context, chain *chainrpc.Client, script *ckbtypes.Script, cell *ckbtypes.CellOutputWithData, tx *ckbtypes.Transaction) *Context {
	return &Context{ctx: ctx, chain: chain, script: script, cell: cell, tx: tx}
}

// Content returns the bytes the guest published via set_content, and whether it ever
// called it. Called exactly once after a successful run (exit code zero).
func (c *Context) Content() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.content == nil {
		return nil, false
	}
	return *c.content, true
}

// Ecall implements riscv.Syscalls, dispatching on register A7.
func (c *Context) Ecall(m *riscv.Machine) (bool, error) {
	switch m.Regs[riscv.A7] {
	case sysVersion:
		m.Regs[riscv.A0] = versionSentinel
		return true, nil

	case sysLoadScript:
		return true, c.loadScript(m)

	case sysLoadScriptHash:
		return true, c.loadScriptHash(m)

	case sysLoadCell:
		return true, c.loadCell(m)

	case sysLoadCellByField:
		return true, c.loadCellByField(m)

	case sysLoadCellData:
		return true, c.loadCellData(m)

	case sysSetContent:
		return true, c.setContent(m)

	case sysDebug:
		return true, c.debug(m)

	case sysFindOutPointByType:
		return true, c.findOutPointByType(m)

	case sysFindCellByOutPoint:
		return true, c.findCellByOutPoint(m)

	case sysFindCellDataByOutPoint:
		return true, c.findCellDataByOutPoint(m)

	default:
		return false, nil
	}
}

// writeOutput implements the ABI's output convention: read the 64-bit capacity at
// lenPtr, write the true size of result back to lenPtr, and if capacity > 0 write
// result[offset:offset+capacity] (clamped) to bufAddr.
func writeOutput(m *riscv.Machine, bufAddr, lenPtr, offset uint64, result []byte) error {
	capacity, err := m.Mem.Load64(lenPtr)
	if err != nil {
		return errors.Wrap(err, "read capacity")
	}

	trueSize := uint64(len(result))
	if err := m.Mem.Store64(lenPtr, trueSize); err != nil {
		return errors.Wrap(err, "write true size")
	}

	if capacity == 0 {
		return nil
	}

	if offset > trueSize {
		offset = trueSize
	}
	end := offset + capacity
	if end > trueSize {
		end = trueSize
	}

	return errors.Wrap(m.Mem.StoreBytes(bufAddr, result[offset:end]), "write result bytes")
}

// requireGroupInput enforces invariant 3: only (index=0, source=GroupInput) addresses a
// cell for the cell-reading syscalls.
func requireGroupInput(index, source uint64) error {
	if index != 0 || Source(source) != SourceGroupInput {
		return errors.Errorf("cell address (index=%d, source=0x%x) is not the group input", index, source)
	}
	return nil
}

func (c *Context) loadScript(m *riscv.Machine) error {
	if c.script == nil {
		return errors.New("script is missing")
	}
	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2], c.script.Bytes())
}

func (c *Context) loadScriptHash(m *riscv.Machine) error {
	if c.script == nil {
		return errors.New("script is missing")
	}
	hash := c.script.Hash()
	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2], hash.Bytes())
}

func (c *Context) loadCell(m *riscv.Machine) error {
	if c.cell == nil {
		return errors.New("cell is missing")
	}
	if err := requireGroupInput(m.Regs[riscv.A3], m.Regs[riscv.A4]); err != nil {
		return err
	}
	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2], c.cell.CellOutput.Bytes())
}

func (c *Context) loadCellData(m *riscv.Machine) error {
	if c.cell == nil {
		return errors.New("cell is missing")
	}
	if err := requireGroupInput(m.Regs[riscv.A3], m.Regs[riscv.A4]); err != nil {
		return err
	}
	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2], c.cell.Data())
}

func (c *Context) loadCellByField(m *riscv.Machine) error {
	if c.cell == nil {
		return errors.New("cell is missing")
	}
	if err := requireGroupInput(m.Regs[riscv.A3], m.Regs[riscv.A4]); err != nil {
		return err
	}

	var result []byte
	switch Field(m.Regs[riscv.A5]) {
	case FieldCapacity, FieldOccupiedCapacity:
		var buf [8]byte
		putUint64LE(buf[:], c.cell.CellOutput.Capacity)
		result = buf[:]
	case FieldDataHash:
		digest := ckbhash.Sum(c.cell.Data())
		result = digest[:]
	case FieldLock:
		result = c.cell.CellOutput.Lock.Bytes()
	case FieldLockHash:
		hash := c.cell.CellOutput.Lock.Hash()
		result = hash.Bytes()
	case FieldType:
		if c.cell.CellOutput.Type != nil {
			result = c.cell.CellOutput.Type.Bytes()
		}
	case FieldTypeHash:
		if c.cell.CellOutput.Type != nil {
			hash := c.cell.CellOutput.Type.Hash()
			result = hash.Bytes()
		}
	default:
		return errors.Errorf("unknown cell field selector %d", m.Regs[riscv.A5])
	}

	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], m.Regs[riscv.A2], result)
}

func (c *Context) setContent(m *riscv.Machine) error {
	length, err := m.Mem.Load64(m.Regs[riscv.A1])
	if err != nil {
		return errors.Wrap(err, "read content length")
	}

	content, err := m.Mem.LoadBytes(m.Regs[riscv.A0], length)
	if err != nil {
		return errors.Wrap(err, "read content bytes")
	}

	c.mu.Lock()
	c.content = &content
	c.mu.Unlock()

	return nil
}

func (c *Context) debug(m *riscv.Machine) error {
	mem, ok := m.Mem.(interface {
		LoadCString(addr uint64) ([]byte, error)
	})
	if !ok {
		return errors.New("memory does not support debug string reads")
	}

	msg, err := mem.LoadCString(m.Regs[riscv.A0])
	if err != nil {
		return errors.Wrap(err, "read debug string")
	}

	logger.Info(c.logCtx(), "%s", string(msg))
	return nil
}

// logCtx returns the request context if one was supplied, or a bare background context
// otherwise (logging is then a no-op, since no Config is attached).
func (c *Context) logCtx() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// bridgeChainCall runs fn on a dedicated worker via threads.NewThreadWithoutStop and
// blocks the calling trap handler on its completion, per the async-inside-sync bridge
// contract: no lock is held across the wait, and distinct Contexts bridge independently.
func (c *Context) bridgeChainCall(fn func(ctx context.Context) error) error {
	done := make(chan error, 1)

	worker := threads.NewThreadWithoutStop("ssrivm-chain-bridge", func(ctx context.Context) error {
		err := fn(ctx)
		done <- err
		return err
	})
	worker.Start(c.logCtx())

	return <-done
}
