package interfaces

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTokenDecimals is the precision of launchpad tokens.
const DefaultTokenDecimals = 6

// FormatAmount renders an integer amount as a fixed-point decimal string with the
// given precision. Trailing fractional zeros are trimmed and the fractional part is
// omitted entirely when it is zero. A nil amount formats as "0".
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ParseAmount parses a base-10 integer of arbitrary size.
func ParseAmount(s string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(s), 10)
}
