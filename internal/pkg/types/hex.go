package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Hex represents a hexadecimal-encoded quantity as a string (e.g., "0x1a").
// It provides validation, JSON marshaling/unmarshaling, and conversion to
// fixed-size and arbitrary-precision integers.
type Hex string

// HexFromString validates the input string and returns a Hex value if valid.
func HexFromString(s string) (Hex, error) {
	if err := validateHex(s); err != nil {
		return "", err
	}
	return Hex(s), nil
}

// HexFromUint64 encodes n as a JSON-RPC quantity.
func HexFromUint64(n uint64) Hex {
	return Hex("0x" + strconv.FormatUint(n, 16))
}

// validateHex checks whether a string is a valid hexadecimal number starting with "0x" or "0X".
// Quantities wider than 64 bits (wei values) are accepted.
func validateHex(s string) error {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return fmt.Errorf("hex string must start with 0x")
	}

	if _, ok := new(big.Int).SetString(s[2:], 16); !ok {
		return fmt.Errorf("invalid hexadecimal value: %q", s)
	}

	return nil
}

// MarshalJSON encodes the Hex as a JSON string.
func (h Hex) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(h))
}

// UnmarshalJSON parses and validates a JSON-encoded hexadecimal string.
func (h *Hex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}

	if err := validateHex(s); err != nil {
		return err
	}

	*h = Hex(s)
	return nil
}

// IsEmpty reports whether the value was never set.
func (h Hex) IsEmpty() bool {
	return h == ""
}

// Uint64 returns the decoded value. Invalid or overflowing input yields zero.
func (h Hex) Uint64() uint64 {
	if len(h) < 3 {
		return 0
	}

	v, _ := strconv.ParseUint(string(h)[2:], 16, 64)
	return v
}

// Big returns the decoded value as an arbitrary-precision integer.
// Invalid input yields zero.
func (h Hex) Big() *big.Int {
	if len(h) < 3 {
		return new(big.Int)
	}

	v, ok := new(big.Int).SetString(string(h)[2:], 16)
	if !ok {
		return new(big.Int)
	}
	return v
}
