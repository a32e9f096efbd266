// Package ssri is the request router: it fetches the guest binary a request names,
// builds the syscall context it should see, runs it through ssrivm, and maps the outcome
// (or any failure reaching it) onto the module's five RPC-facing error kinds.
package ssri

import (
	"context"

	"github.com/ckb-ecofund/ssri-runner-go/chainrpc"
	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/logger"
	"github.com/ckb-ecofund/ssri-runner-go/ssrierr"
	"github.com/ckb-ecofund/ssri-runner-go/ssrivm"
)

// SubSystem is used by the logger package.
const SubSystem = "SSRI"

// Runner executes scripts fetched live from a chain node.
type Runner struct {
	chain *chainrpc.Client
	host  *ssrivm.Host
}

// NewRunner builds a Runner against chain.
func NewRunner(chain *chainrpc.Client) *Runner {
	return &Runner{chain: chain, host: ssrivm.NewHost()}
}

// fetchCell loads the cell at outPoint along with its data, failing with InvalidRequest
// if the cell doesn't exist or carries no data (the cell's data is the guest ELF).
func (r *Runner) fetchCell(ctx context.Context, outPoint ckbtypes.OutPoint) (*ckbtypes.CellOutputWithData, error) {
	result, err := r.chain.GetLiveCell(ctx, outPoint, true)
	if err != nil {
		return nil, ssrierr.JSONRPCRequest()
	}

	if result.Cell == nil {
		return nil, ssrierr.InvalidRequest("Cell not found")
	}
	if result.Cell.Data == nil {
		return nil, ssrierr.InvalidRequest("Cell doesn't have data")
	}

	hexData := result.Cell.Data.Content
	return &ckbtypes.CellOutputWithData{
		CellOutput: result.Cell.Output,
		HexData:    &hexData,
	}, nil
}

// executeScript is the shared core every RunScriptLevel* variant funnels through: fetch
// the binary cell, build the requested context, run it, and map the outcome.
func (r *Runner) executeScript(ctx context.Context, outPoint ckbtypes.OutPoint, script *ckbtypes.Script, cell *ckbtypes.CellOutputWithData, tx *ckbtypes.Transaction, args [][]byte) ([]byte, bool, error) {
	ctx = logger.ContextWithLogSubSystem(ctx, SubSystem)

	programCell, err := r.fetchCell(ctx, outPoint)
	if err != nil {
		return nil, false, err
	}

	logger.Debug(ctx, "Executing script at %s with %d arg(s)", outPoint, len(args))

	result, hasResult, err := r.host.Run(ctx, r.chain, script, cell, tx, programCell.Data(), args)
	if err != nil {
		if vmErr, ok := ssrierr.As(err); ok {
			return nil, false, vmErr
		}
		return nil, false, ssrierr.VM(err.Error())
	}

	return result, hasResult, nil
}

// RunScriptLevelCode runs the binary found at outPoint with no cell or script context,
// only the arguments it was given.
func (r *Runner) RunScriptLevelCode(ctx context.Context, outPoint ckbtypes.OutPoint, args [][]byte) ([]byte, bool, error) {
	return r.executeScript(ctx, outPoint, nil, nil, nil, args)
}

// RunScriptLevelScript runs the binary with script as the current script view.
func (r *Runner) RunScriptLevelScript(ctx context.Context, outPoint ckbtypes.OutPoint, script ckbtypes.Script, args [][]byte) ([]byte, bool, error) {
	return r.executeScript(ctx, outPoint, &script, nil, nil, args)
}

// RunScriptLevelCell runs the binary with cell as the current cell view (and cell.Lock as
// the current script view, matching the cell the script is attached to).
func (r *Runner) RunScriptLevelCell(ctx context.Context, outPoint ckbtypes.OutPoint, cell ckbtypes.CellOutputWithData, args [][]byte) ([]byte, bool, error) {
	script := cell.CellOutput.Lock
	return r.executeScript(ctx, outPoint, &script, &cell, nil, args)
}

// RunScriptLevelTx runs the binary with both a cell and a transaction context.
func (r *Runner) RunScriptLevelTx(ctx context.Context, outPoint ckbtypes.OutPoint, cell ckbtypes.CellOutputWithData, tx ckbtypes.Transaction, args [][]byte) ([]byte, bool, error) {
	script := cell.CellOutput.Lock
	return r.executeScript(ctx, outPoint, &script, &cell, &tx, args)
}

// ExecuteScript is the level-agnostic entry point for callers that already hold every
// optional context value. The CLI's `run` subcommand goes through RunScriptLevelCode.
func (r *Runner) ExecuteScript(ctx context.Context, outPoint ckbtypes.OutPoint, script *ckbtypes.Script, cell *ckbtypes.CellOutputWithData, tx *ckbtypes.Transaction, args [][]byte) ([]byte, bool, error) {
	return r.executeScript(ctx, outPoint, script, cell, tx, args)
}
