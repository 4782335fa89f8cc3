package positions

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/model"
)

// StakingPoolTokens returns display-ready staking-pool positions. An unset pool yields none.
func (s *Service) StakingPoolTokens(ctx context.Context, pool, account common.Address) ([]model.StakedToken, error) {
	if pool == (common.Address{}) {
		return []model.StakedToken{}, nil
	}
	balances, err := s.StakingPoolBalances(ctx, pool, account)
	if err != nil {
		return nil, err
	}
	return ToStakedTokens(balances), nil
}

// VaultTokens returns the display-ready vault position. Unset vault addresses yield none.
func (s *Service) VaultTokens(ctx context.Context, underlying, share, account common.Address) ([]model.StakedToken, error) {
	if underlying == (common.Address{}) || share == (common.Address{}) {
		return []model.StakedToken{}, nil
	}
	balances, err := s.VaultBalance(ctx, underlying, share, account)
	if err != nil {
		return nil, err
	}
	return ToStakedTokens(balances), nil
}

// ToStakedTokens converts priced balances into display records.
func ToStakedTokens(balances model.Balances) []model.StakedToken {
	out := make([]model.StakedToken, 0, len(balances.Items))
	for _, item := range balances.Items {
		out = append(out, ToStakedToken(item))
	}
	return out
}

// ToStakedToken renders one priced balance with two-decimal fiat strings.
func ToStakedToken(item model.PricedBalance) model.StakedToken {
	token := model.StakedToken{
		TokenMeta:   item.Token,
		Source:      item.Source,
		Contract:    item.Contract.Hex(),
		PriceStatus: item.Fiat.Status,
		Balance: model.TokenBalance{
			TokenBalance: FormatTokenAmount(item.Balance, item.Token.Decimals),
			FiatBalance:  item.Fiat.Value().StringFixed(2),
		},
		FiatConversion: "0.00",
	}
	if item.Fiat.IsPriced() {
		token.FiatConversion = item.Fiat.Conversion.StringFixed(2)
	} else if item.Balance != nil && item.Balance.Sign() > 0 {
		token.PriceNote = model.MissingPriceNote
	}

	if item.Lp != nil {
		token0 := item.Lp.Token0
		token1 := item.Lp.Token1
		token.IsLpToken = true
		token.Token0 = &token0
		token.Token1 = &token1
		token.Reserves = []string{item.Lp.Reserves[0].String(), item.Lp.Reserves[1].String()}
	}
	return token
}
