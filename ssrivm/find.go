package ssrivm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/riscv"
)

// The find_* syscalls diverge from the load_* output convention: they take no offset
// register, since a guest reads their (small, fixed or chain-bounded) result in one shot.
// A0/A1 are buf_addr/len_ptr as usual; A2 (and, where the query is variable length, A3)
// carry the encoded query the host decodes before going to the chain.

func (c *Context) findOutPointByType(m *riscv.Machine) error {
	if c.chain == nil {
		return errors.New("no chain client configured")
	}

	queryAddr := m.Regs[riscv.A2]
	queryLen := m.Regs[riscv.A3]

	raw, err := m.Mem.LoadBytes(queryAddr, queryLen)
	if err != nil {
		return errors.Wrap(err, "read type script")
	}

	typeScript, err := ckbtypes.DecodeScript(raw)
	if err != nil {
		return errors.Wrap(err, "decode type script")
	}

	var found *ckbtypes.OutPoint
	err = c.bridgeChainCall(func(ctx context.Context) error {
		cell, callErr := c.chain.FindCellByType(ctx, typeScript)
		if callErr != nil {
			return callErr
		}
		found = &cell.OutPoint
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "find cell by type")
	}

	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], 0, found.Bytes())
}

func (c *Context) findCellByOutPoint(m *riscv.Machine) error {
	if c.chain == nil {
		return errors.New("no chain client configured")
	}

	outPoint, err := c.decodeOutPointArg(m)
	if err != nil {
		return err
	}

	var output ckbtypes.CellOutput
	err = c.bridgeChainCall(func(ctx context.Context) error {
		cell, callErr := c.chain.GetLiveCell(ctx, outPoint, false)
		if callErr != nil {
			return callErr
		}
		if cell.Cell == nil {
			return errors.Errorf("cell %s not found", outPoint)
		}
		output = cell.Cell.Output
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "find cell by out point")
	}

	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], 0, output.Bytes())
}

func (c *Context) findCellDataByOutPoint(m *riscv.Machine) error {
	if c.chain == nil {
		return errors.New("no chain client configured")
	}

	outPoint, err := c.decodeOutPointArg(m)
	if err != nil {
		return err
	}

	var data []byte
	err = c.bridgeChainCall(func(ctx context.Context) error {
		cell, callErr := c.chain.GetLiveCell(ctx, outPoint, true)
		if callErr != nil {
			return callErr
		}
		if cell.Cell == nil {
			return errors.Errorf("cell %s not found", outPoint)
		}
		if cell.Cell.Data != nil {
			data = []byte(cell.Cell.Data.Content)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "find cell data by out point")
	}

	return writeOutput(m, m.Regs[riscv.A0], m.Regs[riscv.A1], 0, data)
}

func (c *Context) decodeOutPointArg(m *riscv.Machine) (ckbtypes.OutPoint, error) {
	raw, err := m.Mem.LoadBytes(m.Regs[riscv.A2], ckbtypes.OutPointSize)
	if err != nil {
		return ckbtypes.OutPoint{}, errors.Wrap(err, "read out point")
	}
	return ckbtypes.DecodeOutPoint(raw)
}
