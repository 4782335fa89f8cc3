package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/model"
)

// Snapshots converts display positions into rows stamped with capturedAt.
// Fiat balance is left nil for positions without a price.
func Snapshots(chainID uint64, account common.Address, tokens []model.StakedToken, capturedAt time.Time) []model.PositionSnapshot {
	out := make([]model.PositionSnapshot, 0, len(tokens))
	for _, token := range tokens {
		snapshot := model.PositionSnapshot{
			ChainID:      chainID,
			Account:      account.Hex(),
			Source:       token.Source,
			Contract:     token.Contract,
			TokenAddress: token.Address,
			Symbol:       token.Symbol,
			Balance:      token.Balance.TokenBalance,
			PriceStatus:  token.PriceStatus,
			CapturedAt:   capturedAt.UTC(),
		}
		if token.PriceStatus == model.PriceStatusPriced {
			fiat := token.Balance.FiatBalance
			snapshot.FiatBalance = &fiat
		}
		out = append(out, snapshot)
	}
	return out
}
