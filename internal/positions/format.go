package positions

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// FormatTokenAmount renders a raw integer amount in whole-token units without trailing zeros.
func FormatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if strings.Contains(text, ".") {
		text = strings.TrimRight(text, "0")
		text = strings.TrimSuffix(text, ".")
	}
	if sign < 0 {
		return "-" + text
	}
	return text
}

// ProRataShare returns reserve * staked / totalSupply, floored. A zero supply yields zero.
func ProRataShare(reserve, staked, totalSupply *big.Int) *big.Int {
	if reserve == nil || staked == nil || totalSupply == nil || totalSupply.Sign() == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(reserve, staked)
	return share.Div(share, totalSupply)
}

// units converts a raw integer amount into whole-token units.
func units(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}
