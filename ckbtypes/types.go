// Package ckbtypes holds the wire and binary forms of the chain's cell/script data model:
// Script, OutPoint, CellOutput and their canonical flat serializations, used both for the
// JSON-RPC boundary and for the bytes a guest script reads back through syscalls.
package ckbtypes

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/ckb-ecofund/ssri-runner-go/ckbhash"
	"github.com/ckb-ecofund/ssri-runner-go/hexutil"
)

// Hash32Size is the length in bytes of an H256 digest.
const Hash32Size = 32

// H256 is a 32 byte chain identifier: a transaction hash or a script's code hash.
type H256 [Hash32Size]byte

// NewH256 builds an H256 from a byte slice of the correct length.
func NewH256(b []byte) (H256, error) {
	var h H256
	if len(b) != Hash32Size {
		return h, errors.Errorf("wrong hash size: got %d, want %d", len(b), Hash32Size)
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns the raw digest bytes.
func (h H256) Bytes() []byte {
	return h[:]
}

func (h H256) String() string {
	return hexutil.ToString(h[:])
}

// MarshalJSON implements json.Marshaler, emitting "0x"-prefixed hex.
func (h H256) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *H256) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("H256: not a JSON string")
	}

	s := string(data[1 : len(data)-1])
	if !strings.HasPrefix(s, "0x") {
		return hexutil.ErrMissingPrefix
	}

	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return errors.Wrap(err, "decode H256")
	}

	decoded, err := NewH256(b)
	if err != nil {
		return err
	}

	*h = decoded
	return nil
}

// Script is the (code_hash, hash_type, args) triple identifying executable logic attached
// to a cell.
type Script struct {
	CodeHash H256          `json:"code_hash"`
	HashType byte          `json:"hash_type"`
	Args     hexutil.Bytes `json:"args"`
}

// Serialize writes the canonical flat form of the script: the 32 byte code hash, the hash
// type byte, a little-endian uint32 length, then the args bytes.
func (s Script) Serialize(w io.Writer) error {
	if _, err := w.Write(s.CodeHash[:]); err != nil {
		return errors.Wrap(err, "code hash")
	}

	if _, err := w.Write([]byte{s.HashType}); err != nil {
		return errors.Wrap(err, "hash type")
	}

	argsLen := uint32(len(s.Args))
	if err := binary.Write(w, binary.LittleEndian, argsLen); err != nil {
		return errors.Wrap(err, "args length")
	}

	if argsLen > 0 {
		if _, err := w.Write(s.Args); err != nil {
			return errors.Wrap(err, "args")
		}
	}

	return nil
}

// Bytes returns the canonical flat serialization.
func (s Script) Bytes() []byte {
	var buf bytes.Buffer
	// Serialize on a bytes.Buffer never returns an error.
	_ = s.Serialize(&buf)
	return buf.Bytes()
}

// Hash returns the Blake2b-256 digest of the script's canonical serialization.
func (s Script) Hash() H256 {
	digest := ckbhash.Sum(s.Bytes())
	return H256(digest)
}

// DecodeScript reads the canonical flat encoding written by Script.Serialize: a 32 byte
// code hash, a hash type byte, a little-endian uint32 args length, then the args bytes.
func DecodeScript(b []byte) (Script, error) {
	var s Script
	const headerSize = Hash32Size + 1 + 4
	if len(b) < headerSize {
		return s, errors.Errorf("script encoding too short: got %d bytes", len(b))
	}

	hash, err := NewH256(b[:Hash32Size])
	if err != nil {
		return s, err
	}
	s.CodeHash = hash
	s.HashType = b[Hash32Size]

	argsLen := binary.LittleEndian.Uint32(b[Hash32Size+1 : headerSize])
	if uint64(headerSize)+uint64(argsLen) != uint64(len(b)) {
		return s, errors.Errorf("script args length mismatch: header says %d, have %d trailing bytes", argsLen, len(b)-headerSize)
	}
	s.Args = append(hexutil.Bytes{}, b[headerSize:]...)

	return s, nil
}

// OutPoint identifies a single cell output: the hash of the transaction that created it and
// its output index within that transaction.
type OutPoint struct {
	TxHash H256   `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

// OutPointSize is the fixed length of an OutPoint's guest-ABI binary layout.
const OutPointSize = Hash32Size + 4

// Serialize writes the guest-ABI layout: 32 bytes of tx hash followed by 4 little-endian
// bytes of index.
func (o OutPoint) Serialize(w io.Writer) error {
	if _, err := w.Write(o.TxHash[:]); err != nil {
		return errors.Wrap(err, "tx hash")
	}
	return binary.Write(w, binary.LittleEndian, o.Index)
}

// Bytes returns the 36 byte guest-ABI encoding.
func (o OutPoint) Bytes() []byte {
	var buf bytes.Buffer
	_ = o.Serialize(&buf)
	return buf.Bytes()
}

// DecodeOutPoint reads the 36 byte guest-ABI encoding written by Serialize.
func DecodeOutPoint(b []byte) (OutPoint, error) {
	var o OutPoint
	if len(b) != OutPointSize {
		return o, errors.Errorf("wrong out point size: got %d, want %d", len(b), OutPointSize)
	}

	hash, err := NewH256(b[:Hash32Size])
	if err != nil {
		return o, err
	}

	o.TxHash = hash
	o.Index = binary.LittleEndian.Uint32(b[Hash32Size:])
	return o, nil
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash, o.Index)
}

// CellOutput is a cell's metadata: its capacity and its lock and optional type scripts.
type CellOutput struct {
	Capacity uint64  `json:"capacity"`
	Lock     Script  `json:"lock"`
	Type     *Script `json:"type"`
}

// Serialize writes the canonical flat form: an 8 byte little-endian capacity, the lock
// script, a presence byte, then the type script if present.
func (c CellOutput) Serialize(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, c.Capacity); err != nil {
		return errors.Wrap(err, "capacity")
	}

	if err := c.Lock.Serialize(w); err != nil {
		return errors.Wrap(err, "lock")
	}

	if c.Type == nil {
		_, err := w.Write([]byte{0})
		return err
	}

	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}

	return errors.Wrap(c.Type.Serialize(w), "type")
}

// Bytes returns the canonical flat serialization of the cell output.
func (c CellOutput) Bytes() []byte {
	var buf bytes.Buffer
	_ = c.Serialize(&buf)
	return buf.Bytes()
}

// CellOutputWithData pairs a CellOutput with its optional data payload.
type CellOutputWithData struct {
	CellOutput CellOutput     `json:"cell_output"`
	HexData    *hexutil.Bytes `json:"hex_data"`
}

// Data returns the cell's data bytes, or nil if absent.
func (c CellOutputWithData) Data() []byte {
	if c.HexData == nil {
		return nil
	}
	return []byte(*c.HexData)
}

// Transaction is held opaque: its shape is forwarded into the syscall context but read by
// no currently implemented syscall (see the ABI's reserved tx handling).
type Transaction struct {
	Hash    H256          `json:"hash"`
	Version uint32        `json:"version"`
	Raw     hexutil.Bytes `json:"raw,omitempty"`
}
