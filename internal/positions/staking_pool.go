package positions

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stakeScope/internal/contracts"
	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
)

// StakingPoolPositions enumerates the pools of a MasterChef-style contract and
// returns the pools where account has a nonzero stake.
func (s *Service) StakingPoolPositions(ctx context.Context, pool, account common.Address) ([]model.PoolPosition, error) {
	if s.batcher == nil {
		return nil, fmt.Errorf("batcher is nil")
	}
	chefABI, err := contracts.MasterChefABI()
	if err != nil {
		return nil, fmt.Errorf("parse staking pool abi: %w", err)
	}

	lengthCall, err := multicall.NewCall(pool, chefABI, "poolLength")
	if err != nil {
		return nil, err
	}
	values, err := s.batcher.Multicall(ctx, []multicall.Call{lengthCall})
	if err != nil {
		return nil, fmt.Errorf("pool length: %w", err)
	}
	n, err := poolCount(values[0])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []model.PoolPosition{}, nil
	}

	infoArgs := make([][]interface{}, n)
	userArgs := make([][]interface{}, n)
	for i := 0; i < n; i++ {
		idx := big.NewInt(int64(i))
		infoArgs[i] = []interface{}{idx}
		userArgs[i] = []interface{}{idx, account}
	}
	infoCalls, err := buildCalls(pool, chefABI, "poolInfo", infoArgs)
	if err != nil {
		return nil, err
	}
	userCalls, err := buildCalls(pool, chefABI, "userInfo", userArgs)
	if err != nil {
		return nil, err
	}

	poolInfos, err := s.batcher.Multicall(ctx, infoCalls)
	if err != nil {
		return nil, fmt.Errorf("pool info: %w", err)
	}
	userInfos, err := s.batcher.Multicall(ctx, userCalls)
	if err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}

	positions := make([]model.PoolPosition, 0)
	for i := 0; i < n; i++ {
		amountRaw, err := contracts.Field(userInfos[i], 0)
		if err != nil {
			return nil, fmt.Errorf("user info %d: %w", i, err)
		}
		amount, err := contracts.AsBigInt(amountRaw)
		if err != nil {
			return nil, fmt.Errorf("user info %d amount: %w", i, err)
		}
		if amount.Sign() == 0 {
			continue
		}
		tokenRaw, err := contracts.Field(poolInfos[i], 0)
		if err != nil {
			return nil, fmt.Errorf("pool info %d: %w", i, err)
		}
		token, err := contracts.AsAddress(tokenRaw)
		if err != nil {
			return nil, fmt.Errorf("pool info %d token: %w", i, err)
		}
		positions = append(positions, model.PoolPosition{PoolIndex: uint64(i), Token: token, Amount: amount})
	}
	return positions, nil
}

// StakingPoolBalances prices every staked position of account in pool.
// Per-position metadata and price failures degrade that position only.
func (s *Service) StakingPoolBalances(ctx context.Context, pool, account common.Address) (model.Balances, error) {
	positions, err := s.StakingPoolPositions(ctx, pool, account)
	if err != nil {
		return model.Balances{}, err
	}

	items := make([]model.PricedBalance, len(positions))
	var wg sync.WaitGroup
	for i, position := range positions {
		wg.Add(1)
		go func(i int, position model.PoolPosition) {
			defer wg.Done()
			items[i] = s.pricePosition(ctx, pool, position)
		}(i, position)
	}
	wg.Wait()

	s.logger.Debug("staking pool balances",
		zap.String("pool", pool.Hex()),
		zap.String("account", account.Hex()),
		zap.Int("positions", len(items)),
	)

	return model.Balances{Items: items, FiatTotal: sumFiat(items)}, nil
}

func (s *Service) pricePosition(ctx context.Context, pool common.Address, position model.PoolPosition) model.PricedBalance {
	item := model.PricedBalance{
		Source:    model.SourceStakingPool,
		PoolIndex: position.PoolIndex,
		Contract:  pool,
		Balance:   position.Amount,
		Token:     model.TokenMeta{Type: model.TokenTypeERC20, Address: position.Token.Hex()},
		Fiat:      model.PriceUnavailable(),
	}

	meta, err := s.tokens.TokenInfo(ctx, position.Token)
	if err != nil {
		s.logger.Warn("position token metadata unavailable", zap.String("token", position.Token.Hex()), zap.Error(err))
		s.markNonLp(ctx, position.Token, err)
		return item
	}
	item.Token = meta

	lp := s.lpComposition(ctx, position)
	if lp == nil {
		prices := s.lookupPrices(ctx, position.Token)
		if price, ok := prices[position.Token]; ok {
			fiat := units(position.Amount, meta.Decimals).Mul(price).Round(2)
			item.Fiat = model.Priced(fiat, price)
		}
		return item
	}
	item.Lp = lp

	token0 := common.HexToAddress(lp.Token0.Address)
	token1 := common.HexToAddress(lp.Token1.Address)
	prices := s.lookupPrices(ctx, token0, token1)

	var (
		price   decimal.Decimal
		side    model.TokenMeta
		reserve *big.Int
		found   bool
	)
	if p, ok := prices[token0]; ok {
		price, side, reserve, found = p, lp.Token0, lp.Reserves[0], true
	} else if p, ok := prices[token1]; ok {
		price, side, reserve, found = p, lp.Token1, lp.Reserves[1], true
	}
	if !found {
		return item
	}

	// Only one side is priced; doubling assumes a balanced constant-product pool.
	fiat := units(reserve, side.Decimals).Mul(price).Mul(two)
	item.Fiat = model.Priced(fiat.Round(2), conversionRate(fiat, position.Amount, meta.Decimals))
	return item
}

// lpComposition resolves the pair behind a position. Tokens that fail LP
// decoding are remembered and never retried as pairs.
func (s *Service) lpComposition(ctx context.Context, position model.PoolPosition) *model.LpComposition {
	if s.tokens.IsNonLp(position.Token) {
		return nil
	}

	pair, err := s.tokens.LpTokenInfo(ctx, position.Token)
	if err != nil {
		s.logger.Debug("lp lookup failed", zap.String("token", position.Token.Hex()), zap.Error(err))
		s.markNonLp(ctx, position.Token, err)
		return nil
	}

	var (
		wg         sync.WaitGroup
		meta0      model.TokenMeta
		meta1      model.TokenMeta
		err0, err1 error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		meta0, err0 = s.tokens.TokenInfo(ctx, pair.Token0)
	}()
	go func() {
		defer wg.Done()
		meta1, err1 = s.tokens.TokenInfo(ctx, pair.Token1)
	}()
	wg.Wait()
	if err0 != nil || err1 != nil {
		s.logger.Warn("lp constituent metadata unavailable",
			zap.String("token", position.Token.Hex()),
			zap.NamedError("token0_error", err0),
			zap.NamedError("token1_error", err1),
		)
		s.markNonLp(ctx, position.Token, err0, err1)
		return nil
	}

	return &model.LpComposition{
		Token0: meta0,
		Token1: meta1,
		Reserves: [2]*big.Int{
			ProRataShare(pair.Reserve0, position.Amount, pair.TotalSupply),
			ProRataShare(pair.Reserve1, position.Amount, pair.TotalSupply),
		},
	}
}

// markNonLp records token in the negative LP cache unless the failure came from
// cancellation, which says nothing about the token.
func (s *Service) markNonLp(ctx context.Context, token common.Address, errs ...error) {
	if ctx.Err() != nil {
		return
	}
	for _, err := range errs {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
	}
	s.tokens.MarkNonLp(token)
}

// conversionRate is the fiat value of one whole unit of the staked token.
func conversionRate(fiat decimal.Decimal, amount *big.Int, decimals uint8) decimal.Decimal {
	held := units(amount, decimals)
	if held.IsZero() {
		return decimal.Zero
	}
	return fiat.Div(held)
}
