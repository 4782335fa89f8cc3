package positions

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeScope/internal/contracts"
	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
)

// VaultBalance values account's shares in a reward-bearing vault (SushiBar-style) in
// underlying terms: shares * underlyingHeld / totalShares. An account without shares
// yields an empty result and no further calls.
func (s *Service) VaultBalance(ctx context.Context, underlying, share, account common.Address) (model.Balances, error) {
	if s.batcher == nil {
		return model.Balances{}, fmt.Errorf("batcher is nil")
	}
	erc20, err := contracts.ERC20ABI()
	if err != nil {
		return model.Balances{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	specs := []struct {
		target common.Address
		method string
		args   []interface{}
	}{
		{share, "balanceOf", []interface{}{account}},
		{underlying, "balanceOf", []interface{}{share}},
		{share, "totalSupply", nil},
		{underlying, "decimals", nil},
	}
	calls := make([]multicall.Call, 0, len(specs))
	for _, spec := range specs {
		call, err := multicall.NewCall(spec.target, erc20, spec.method, spec.args...)
		if err != nil {
			return model.Balances{}, err
		}
		calls = append(calls, call)
	}

	values, err := s.batcher.Multicall(ctx, calls)
	if err != nil {
		return model.Balances{}, fmt.Errorf("vault state: %w", err)
	}

	staked, err := contracts.AsBigInt(values[0])
	if err != nil {
		return model.Balances{}, fmt.Errorf("staked shares: %w", err)
	}
	if staked.Sign() == 0 {
		return model.Balances{Items: []model.PricedBalance{}}, nil
	}
	held, err := contracts.AsBigInt(values[1])
	if err != nil {
		return model.Balances{}, fmt.Errorf("underlying held: %w", err)
	}
	totalShares, err := contracts.AsBigInt(values[2])
	if err != nil {
		return model.Balances{}, fmt.Errorf("total shares: %w", err)
	}
	underlyingDecimals, err := contracts.AsUint8(values[3])
	if err != nil {
		return model.Balances{}, fmt.Errorf("underlying decimals: %w", err)
	}

	shareMeta, err := s.tokens.TokenInfo(ctx, share)
	if err != nil {
		return model.Balances{}, fmt.Errorf("vault share token: %w", err)
	}

	item := model.PricedBalance{
		Source:   model.SourceVault,
		Contract: share,
		Balance:  new(big.Int).Set(staked),
		Token:    shareMeta,
		Fiat:     model.PriceUnavailable(),
	}

	rawUnderlying := ProRataShare(held, staked, totalShares)
	prices := s.lookupPrices(ctx, underlying)
	if price, ok := prices[underlying]; ok {
		fiat := units(rawUnderlying, underlyingDecimals).Mul(price)
		item.Fiat = model.Priced(fiat.Round(2), conversionRate(fiat, staked, shareMeta.Decimals))
	} else {
		s.logger.Debug("vault underlying price unavailable", zap.String("token", underlying.Hex()))
	}

	items := []model.PricedBalance{item}
	return model.Balances{Items: items, FiatTotal: sumFiat(items)}, nil
}
