package orderhub

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Bytes32 is a 32-byte identifier as used for addresses, token identifiers
// and order ids throughout the protocol. It marshals to and from 0x-prefixed
// hex.
type Bytes32 [32]byte

// PadAddress encodes a native 20-byte address as its 32-byte padded form,
// left-padded with zero bytes.
func PadAddress(addr common.Address) Bytes32 {
	var b Bytes32
	copy(b[12:], addr.Bytes())
	return b
}

// Address decodes the 32-byte padded form back to a native address by
// dropping the leading 12 bytes.
func (b Bytes32) Address() common.Address {
	return common.BytesToAddress(b[12:])
}

// Hash returns the value as a go-ethereum hash for hashing interop.
func (b Bytes32) Hash() common.Hash {
	return common.Hash(b)
}

func (b Bytes32) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

// ParseBytes32 parses a 64-hex-character identifier, with or without the 0x
// prefix.
func ParseBytes32(s string) (Bytes32, error) {
	var b Bytes32
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 64 {
		return b, NewError(ErrCodeValidation, fmt.Sprintf("identifier must be 64 hex characters, got %d", len(raw)), ErrInvalidAddress)
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return b, NewError(ErrCodeValidation, "identifier is not valid hex", ErrInvalidAddress)
	}
	copy(b[:], decoded)
	return b, nil
}

// MarshalJSON implements json.Marshaler.
func (b Bytes32) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBytes32(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
