// Package chainrpc is a thin JSON-RPC 2.0 client for the subset of a CKB-style chain
// node's API this host needs: fetching a live cell and searching cells by type script.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ckb-ecofund/ssri-runner-go/ckbtypes"
	"github.com/ckb-ecofund/ssri-runner-go/hexutil"
	"github.com/ckb-ecofund/ssri-runner-go/logger"
)

// SubSystem is used by the logger package.
const SubSystem = "ChainRPC"

// ErrRequestFailed is returned for any transport, decode, or JSON-RPC-level failure. Its
// message is intentionally not surfaced to RPC clients (spec: JsonRpcRequestError carries
// an empty message).
var ErrRequestFailed = errors.New("chain rpc request failed")

// Client is a cheaply cloneable handle to a chain node's JSON-RPC endpoint. Cloning does
// not duplicate the underlying connection pool; all clones share one *http.Client and one
// request id counter.
type Client struct {
	http *http.Client
	url  string
	id   *uint64
}

// New creates a Client pointed at url, e.g. "https://testnet.ckbapp.dev/".
func New(url string) *Client {
	transport := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	var id uint64
	return &Client{
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		url: url,
		id:  &id,
	}
}

// Clone returns a Client sharing this one's HTTP client, URL, and id counter.
func (c *Client) Clone() *Client {
	clone := *c
	return &clone
}

type rpcRequest struct {
	ID      uint64        `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// call posts a JSON-RPC 2.0 envelope to the chain node and decodes result into v.
func (c *Client) call(ctx context.Context, method string, params []interface{}, v interface{}) error {
	reqID := atomic.AddUint64(c.id, 1)
	traceID := uuid.New()

	logger.Verbose(ctx, "Calling %s (request %d, trace %s)", method, reqID, traceID)

	body, err := json.Marshal(rpcRequest{
		ID:      reqID,
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(ErrRequestFailed, errors.Wrap(err, "marshal request").Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(ErrRequestFailed, errors.Wrap(err, "build request").Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Error(ctx, "Chain RPC call failed: %s : %s", method, err)
		return errors.Wrap(ErrRequestFailed, errors.Wrap(err, "http post").Error())
	}
	defer httpResp.Body.Close()

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		logger.Error(ctx, "Chain RPC decode failed: %s : %s", method, err)
		return errors.Wrap(ErrRequestFailed, errors.Wrap(err, "decode response").Error())
	}

	if resp.Error != nil {
		logger.Error(ctx, "Chain RPC error: %s : %s", method, resp.Error.Message)
		return errors.Wrap(ErrRequestFailed, resp.Error.Message)
	}

	if v == nil {
		return nil
	}

	if err := json.Unmarshal(resp.Result, v); err != nil {
		return errors.Wrap(ErrRequestFailed, errors.Wrap(err, "unmarshal result").Error())
	}

	return nil
}

// CellInfo is the cell data returned inside a CellWithStatus.
type CellInfo struct {
	Output ckbtypes.CellOutput `json:"output"`
	Data   *CellData           `json:"data"`
}

// CellData is the data payload of a cell, as returned by get_live_cell.
type CellData struct {
	Content hexutil.Bytes `json:"content"`
	Hash    ckbtypes.H256 `json:"hash"`
}

// CellWithStatus is the response shape of get_live_cell.
type CellWithStatus struct {
	Cell   *CellInfo `json:"cell"`
	Status string    `json:"status"`
}

// GetLiveCell fetches the cell identified by outPoint. If withData is true the response
// includes the cell's data payload.
func (c *Client) GetLiveCell(ctx context.Context, outPoint ckbtypes.OutPoint, withData bool) (*CellWithStatus, error) {
	var result CellWithStatus
	if err := c.call(ctx, "get_live_cell", []interface{}{outPoint, withData}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ScriptType selects whether a SearchKey's script is matched as a lock or type script.
type ScriptType string

// Valid ScriptType values.
const (
	ScriptTypeLock ScriptType = "lock"
	ScriptTypeType ScriptType = "type"
)

// SearchKey selects cells by a script, as used by get_cells.
type SearchKey struct {
	Script     ckbtypes.Script `json:"script"`
	ScriptType ScriptType      `json:"script_type"`
}

// Cell is one entry in a get_cells Pagination response.
type Cell struct {
	OutPoint ckbtypes.OutPoint `json:"out_point"`
	Output   ckbtypes.CellOutput `json:"output"`
}

// Pagination is the paged response shape of get_cells.
type Pagination struct {
	Objects    []Cell        `json:"objects"`
	LastCursor hexutil.Bytes `json:"last_cursor"`
}

// GetCells returns up to limit cells matching searchKey in ascending order, with an
// optional continuation cursor.
func (c *Client) GetCells(ctx context.Context, searchKey SearchKey, limit uint32, cursor []byte) (*Pagination, error) {
	params := []interface{}{searchKey, "asc", limit}
	if cursor != nil {
		params = append(params, hexutil.ToString(cursor))
	} else {
		params = append(params, nil)
	}

	var result Pagination
	if err := c.call(ctx, "get_cells", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindCellByType returns the first cell whose type script matches typeScript, or
// ErrNotFound if none match.
var ErrNotFound = errors.New("no matching cell found")

func (c *Client) FindCellByType(ctx context.Context, typeScript ckbtypes.Script) (*Cell, error) {
	page, err := c.GetCells(ctx, SearchKey{Script: typeScript, ScriptType: ScriptTypeType}, 1, nil)
	if err != nil {
		return nil, err
	}

	if len(page.Objects) == 0 {
		return nil, ErrNotFound
	}

	return &page.Objects[0], nil
}
