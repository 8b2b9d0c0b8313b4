package interfaces

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals int
		expected string
	}{
		{"zero", big.NewInt(0), 6, "0"},
		{"nil", nil, 6, "0"},
		{"fraction trimmed", big.NewInt(1_500_000), 6, "1.5"},
		{"whole", big.NewInt(10_000_000), 6, "10"},
		{"smallest unit", big.NewInt(1), 6, "0.000001"},
		{"no decimals", big.NewInt(42), 0, "42"},
		{"mixed", big.NewInt(123_456_789), 6, "123.456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatAmount(tt.amount, tt.decimals))
		})
	}
}

func TestFormatAmount_BeyondNativeWidth(t *testing.T) {
	huge, ok := ParseAmount("340282366920938463463374607431768211456000000")
	require.True(t, ok)
	assert.Equal(t, "340282366920938463463374607431768211456", FormatAmount(huge, 6))
}

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount(" 1500000 ")
	require.True(t, ok)
	assert.Equal(t, int64(1_500_000), v.Int64())

	_, ok = ParseAmount("1.5")
	assert.False(t, ok)

	_, ok = ParseAmount("not-a-number")
	assert.False(t, ok)
}

func TestEncryptedHandle(t *testing.T) {
	var empty EncryptedHandle
	assert.True(t, empty.IsEmpty())

	h, err := NewEncryptedHandleFromHex("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, h.IsEmpty())
	assert.Equal(t, byte(0xab), h[0])
	assert.Equal(t, byte(0x01), h[31])

	roundTrip, err := NewEncryptedHandleFromHex(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, roundTrip)

	_, err = NewEncryptedHandleFromHex("0x1234")
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestTokenRecord_IsCreator(t *testing.T) {
	record := TokenRecord{
		TokenIdentity: TokenIdentity{
			Address: common.HexToAddress("0xAA"),
			Creator: common.HexToAddress("0x00000000000000000000000000000000000000cC"),
		},
		TokenMetadata: DefaultTokenMetadata(),
	}
	assert.True(t, record.IsCreator(common.HexToAddress("0xcc")))
	assert.False(t, record.IsCreator(common.HexToAddress("0xdd")))
	assert.Equal(t, "0", record.FormattedAllowance(DefaultTokenDecimals))
}
