// Package rpcserver exposes an ssri.Runner over JSON-RPC 2.0, both as plain HTTP POST and,
// optionally, over a websocket connection, mirroring how the teacher's peer_channels
// package runs one accept loop over either transport.
package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/hexutil"
	"github.com/ckb-ecofund/ssri-runner-go/logger"
	"github.com/ckb-ecofund/ssri-runner-go/ssri"
	"github.com/ckb-ecofund/ssri-runner-go/ssrierr"
)

// SubSystem is used by the logger package.
const SubSystem = "RPCServer"

// Server binds an ssri.Runner's four run_script_level_* methods to JSON-RPC 2.0, over
// either an HTTP POST body or a websocket connection.
type Server struct {
	runner   *ssri.Runner
	upgrader websocket.Upgrader
}

// New builds a Server around runner.
func New(runner *ssri.Runner) *Server {
	return &Server{
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// This host serves scripts, not browser pages; it does not need to police
			// cross-origin callers beyond what the operator's own reverse proxy does.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type rpcRequest struct {
	ID      json.RawMessage   `json:"id"`
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    ssrierr.Code `json:"code"`
	Message string       `json:"message"`
}

type rpcResponse struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for plain JSON-RPC 2.0 over POST.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errorResponse(nil, ssrierr.JSONRPCRequest()))
		return
	}

	resp := s.handle(r.Context(), req)
	writeJSON(w, resp)
}

// ServeWebSocket upgrades r to a websocket and serves JSON-RPC 2.0 requests, one message
// per request/response pair, until the connection closes.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(r.Context(), "websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	ctx := logger.ContextWithLogSubSystem(r.Context(), SubSystem)

	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		resp := s.handle(ctx, req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req rpcRequest) rpcResponse {
	if req.Method == "" {
		return errorResponse(req.ID, ssrierr.JSONRPCRequest())
	}

	result, hasResult, err := s.dispatch(ctx, req)
	if err != nil {
		vmErr, ok := ssrierr.As(err)
		if !ok {
			vmErr = ssrierr.VM(err.Error())
		}
		return errorResponse(req.ID, vmErr)
	}

	var encoded *string
	if hasResult {
		s := hexutil.ToString(result)
		encoded = &s
	}

	// Result is the bare hex string or null, matching Hex | null: no wrapper object.
	return rpcResponse{ID: req.ID, JSONRPC: "2.0", Result: encoded}
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) ([]byte, bool, error) {
	switch req.Method {
	case "run_script_level_code":
		outPoint, args, err := decodeCodeParams(req.Params)
		if err != nil {
			return nil, false, err
		}
		return s.runner.RunScriptLevelCode(ctx, outPoint, args)

	case "run_script_level_script":
		outPoint, script, args, err := decodeScriptParams(req.Params)
		if err != nil {
			return nil, false, err
		}
		return s.runner.RunScriptLevelScript(ctx, outPoint, script, args)

	case "run_script_level_cell":
		outPoint, cell, args, err := decodeCellParams(req.Params)
		if err != nil {
			return nil, false, err
		}
		return s.runner.RunScriptLevelCell(ctx, outPoint, cell, args)

	case "run_script_level_tx":
		outPoint, cell, tx, args, err := decodeTxParams(req.Params)
		if err != nil {
			return nil, false, err
		}
		return s.runner.RunScriptLevelTx(ctx, outPoint, cell, tx, args)

	default:
		return nil, false, ssrierr.InvalidRequest("unknown method " + req.Method)
	}
}

func writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func errorResponse(id json.RawMessage, err *ssrierr.Error) rpcResponse {
	return rpcResponse{
		ID:      id,
		JSONRPC: "2.0",
		Error:   &rpcError{Code: err.Code, Message: err.Message},
	}
}

func decodeOutPoint(txHashParam, indexParam json.RawMessage) (ckbtypes.OutPoint, error) {
	var outPoint ckbtypes.OutPoint
	if err := json.Unmarshal(txHashParam, &outPoint.TxHash); err != nil {
		return outPoint, ssrierr.Encoding(errors.Wrap(err, "tx_hash").Error())
	}
	if err := json.Unmarshal(indexParam, &outPoint.Index); err != nil {
		return outPoint, ssrierr.Encoding(errors.Wrap(err, "index").Error())
	}
	return outPoint, nil
}

func decodeArgs(raw json.RawMessage) ([][]byte, error) {
	var hexArgs []hexutil.Bytes
	if err := json.Unmarshal(raw, &hexArgs); err != nil {
		return nil, ssrierr.Encoding(errors.Wrap(err, "args").Error())
	}
	args := make([][]byte, len(hexArgs))
	for i, a := range hexArgs {
		args[i] = []byte(a)
	}
	return args, nil
}

func decodeCodeParams(params []json.RawMessage) (ckbtypes.OutPoint, [][]byte, error) {
	if len(params) != 3 {
		return ckbtypes.OutPoint{}, nil, ssrierr.InvalidRequest("expected 3 params: tx_hash, index, args")
	}
	outPoint, err := decodeOutPoint(params[0], params[1])
	if err != nil {
		return outPoint, nil, err
	}
	args, err := decodeArgs(params[2])
	return outPoint, args, err
}

func decodeScriptParams(params []json.RawMessage) (ckbtypes.OutPoint, ckbtypes.Script, [][]byte, error) {
	var script ckbtypes.Script
	if len(params) != 4 {
		return ckbtypes.OutPoint{}, script, nil, ssrierr.InvalidRequest("expected 4 params: tx_hash, index, script, args")
	}
	outPoint, err := decodeOutPoint(params[0], params[1])
	if err != nil {
		return outPoint, script, nil, err
	}
	if err := json.Unmarshal(params[2], &script); err != nil {
		return outPoint, script, nil, ssrierr.Encoding(errors.Wrap(err, "script").Error())
	}
	args, err := decodeArgs(params[3])
	return outPoint, script, args, err
}

func decodeCellParams(params []json.RawMessage) (ckbtypes.OutPoint, ckbtypes.CellOutputWithData, [][]byte, error) {
	var cell ckbtypes.CellOutputWithData
	if len(params) != 4 {
		return ckbtypes.OutPoint{}, cell, nil, ssrierr.InvalidRequest("expected 4 params: tx_hash, index, cell, args")
	}
	outPoint, err := decodeOutPoint(params[0], params[1])
	if err != nil {
		return outPoint, cell, nil, err
	}
	if err := json.Unmarshal(params[2], &cell); err != nil {
		return outPoint, cell, nil, ssrierr.Encoding(errors.Wrap(err, "cell").Error())
	}
	args, err := decodeArgs(params[3])
	return outPoint, cell, args, err
}

func decodeTxParams(params []json.RawMessage) (ckbtypes.OutPoint, ckbtypes.CellOutputWithData, ckbtypes.Transaction, [][]byte, error) {
	var cell ckbtypes.CellOutputWithData
	var tx ckbtypes.Transaction
	if len(params) != 5 {
		return ckbtypes.OutPoint{}, cell, tx, nil, ssrierr.InvalidRequest("expected 5 params: tx_hash, index, cell, tx, args")
	}
	outPoint, err := decodeOutPoint(params[0], params[1])
	if err != nil {
		return outPoint, cell, tx, nil, err
	}
	if err := json.Unmarshal(params[2], &cell); err != nil {
		return outPoint, cell, tx, nil, ssrierr.Encoding(errors.Wrap(err, "cell").Error())
	}
	if err := json.Unmarshal(params[3], &tx); err != nil {
		return outPoint, cell, tx, nil, ssrierr.Encoding(errors.Wrap(err, "tx").Error())
	}
	args, err := decodeArgs(params[4])
	return outPoint, cell, tx, args, err
}
