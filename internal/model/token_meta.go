package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenTypeERC20 is the only token type the aggregator resolves.
const TokenTypeERC20 = "ERC20"

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Type     string `json:"type"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	LogoURI  string `json:"logo_uri"`
}

// LpPair is the composition of a UniswapV2-style pair contract.
type LpPair struct {
	Token0             common.Address
	Token1             common.Address
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
	TotalSupply        *big.Int
}

// Clone returns a deep copy so callers may mutate reserves freely.
func (p LpPair) Clone() LpPair {
	out := p
	out.Reserve0 = cloneInt(p.Reserve0)
	out.Reserve1 = cloneInt(p.Reserve1)
	out.TotalSupply = cloneInt(p.TotalSupply)
	return out
}

// Reserves returns both reserves in token order.
func (p LpPair) Reserves() [2]*big.Int {
	return [2]*big.Int{p.Reserve0, p.Reserve1}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
