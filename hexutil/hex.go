// Package hexutil implements the 0x-prefixed hex encoding used at the JSON-RPC boundary.
package hexutil

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// ErrMissingPrefix is returned when a hex string lacks the required "0x" prefix.
var ErrMissingPrefix = errors.New("hex string must have 0x prefix")

// Bytes is a byte slice that marshals to and from JSON as a "0x"-prefixed lowercase hex
// string. The empty slice marshals as "0x".
type Bytes []byte

// ToString encodes b as "0x" followed by lowercase hex. An empty or nil input encodes as
// "0x".
func ToString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// FromString decodes a "0x"-prefixed hex string into bytes. It fails if s does not start
// with "0x" or contains non-hex characters.
func FromString(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, ErrMissingPrefix
	}

	rest := s[2:]
	if len(rest) == 0 {
		return []byte{}, nil
	}

	b, err := hex.DecodeString(rest)
	if err != nil {
		return nil, errors.Wrap(err, "decode hex")
	}

	return b, nil
}

func (b Bytes) String() string {
	return ToString(b)
}

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ToString(b) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("hex: not a JSON string")
	}

	decoded, err := FromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}

	*b = decoded
	return nil
}
