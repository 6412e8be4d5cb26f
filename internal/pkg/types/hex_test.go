package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex_UnmarshalJSON(t *testing.T) {
	t.Run("valid lowercase hex", func(t *testing.T) {
		input := `"0x1a"`
		var h Hex

		err := json.Unmarshal([]byte(input), &h)
		require.NoError(t, err)
		assert.Equal(t, Hex("0x1a"), h)
	})

	t.Run("valid uppercase hex", func(t *testing.T) {
		input := `"0X2F"`
		var h Hex

		err := json.Unmarshal([]byte(input), &h)
		require.NoError(t, err)
		assert.Equal(t, Hex("0X2F"), h)
	})

	t.Run("missing 0x prefix", func(t *testing.T) {
		input := `"1a"`
		var h Hex

		err := json.Unmarshal([]byte(input), &h)
		require.Error(t, err)
	})

	t.Run("invalid hex characters", func(t *testing.T) {
		input := `"0xZZZ"`
		var h Hex

		err := json.Unmarshal([]byte(input), &h)
		require.Error(t, err)
	})

	t.Run("not a string", func(t *testing.T) {
		input := `42`
		var h Hex

		err := json.Unmarshal([]byte(input), &h)
		require.Error(t, err)
	})
}

func TestHex_Uint64(t *testing.T) {
	t.Run("0x0a should be 10", func(t *testing.T) {
		var h Hex = "0x0a"
		assert.Equal(t, uint64(10), h.Uint64())
	})

	t.Run("0xff should be 255", func(t *testing.T) {
		var h Hex = "0xff"
		assert.Equal(t, uint64(255), h.Uint64())
	})

	t.Run("0X10 should be 16", func(t *testing.T) {
		var h Hex = "0X10"
		assert.Equal(t, uint64(16), h.Uint64())
	})

	t.Run("invalid hex returns 0", func(t *testing.T) {
		var h Hex = "0xZZZ"
		assert.Equal(t, uint64(0), h.Uint64())
	})

	t.Run("empty value returns 0", func(t *testing.T) {
		var h Hex
		assert.True(t, h.IsEmpty())
		assert.Equal(t, uint64(0), h.Uint64())
	})
}

func TestHex_Big(t *testing.T) {
	t.Run("value wider than 64 bits", func(t *testing.T) {
		input := `"0x1bc16d674ec800000"` // 32 ether in wei
		var h Hex

		err := json.Unmarshal([]byte(input), &h)
		require.NoError(t, err)

		expected, _ := new(big.Int).SetString("32000000000000000000", 10)
		assert.Equal(t, 0, expected.Cmp(h.Big()))
	})

	t.Run("invalid hex returns zero", func(t *testing.T) {
		var h Hex = "0xnope"
		assert.Equal(t, int64(0), h.Big().Int64())
	})
}

func TestHexFromUint64(t *testing.T) {
	assert.Equal(t, Hex("0x0"), HexFromUint64(0))
	assert.Equal(t, Hex("0x10"), HexFromUint64(16))
	assert.Equal(t, uint64(12345678), HexFromUint64(12345678).Uint64())
}
