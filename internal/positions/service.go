package positions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
	"stakeScope/internal/pricing"
)

// maxPools bounds the pool enumeration of a single staking contract.
const maxPools = 10_000

// Batcher executes required-success batches.
type Batcher interface {
	Multicall(ctx context.Context, calls []multicall.Call) ([]interface{}, error)
}

// TokenResolver resolves token and LP metadata with a negative LP cache.
type TokenResolver interface {
	TokenInfo(ctx context.Context, address common.Address) (model.TokenMeta, error)
	LpTokenInfo(ctx context.Context, address common.Address) (model.LpPair, error)
	MarkNonLp(address common.Address)
	IsNonLp(address common.Address) bool
}

// Option configures a Service.
type Option func(*Service)

// WithPriceTimeout bounds each per-position price lookup.
func WithPriceTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.priceTimeout = d
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service aggregates staked positions of an account into priced balances.
type Service struct {
	batcher      Batcher
	tokens       TokenResolver
	prices       pricing.Source
	priceTimeout time.Duration
	logger       *zap.Logger
}

func NewService(batcher Batcher, resolver TokenResolver, prices pricing.Source, opts ...Option) *Service {
	s := &Service{
		batcher:      batcher,
		tokens:       resolver,
		prices:       prices,
		priceTimeout: pricing.DefaultTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookupPrices queries the price source with a per-lookup timeout. Failures yield no prices.
func (s *Service) lookupPrices(ctx context.Context, tokens ...common.Address) map[common.Address]decimal.Decimal {
	if s.prices == nil {
		return nil
	}
	if s.priceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.priceTimeout)
		defer cancel()
	}
	prices, err := s.prices.Prices(ctx, tokens)
	if err != nil {
		s.logger.Warn("price lookup failed", zap.Int("tokens", len(tokens)), zap.Error(err))
		return nil
	}
	return prices
}

func buildCalls(target common.Address, contractABI abi.ABI, method string, argSets [][]interface{}) ([]multicall.Call, error) {
	calls := make([]multicall.Call, 0, len(argSets))
	for _, args := range argSets {
		call, err := multicall.NewCall(target, contractABI, method, args...)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func sumFiat(items []model.PricedBalance) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Fiat.Value())
	}
	return total.Round(2)
}

func poolCount(value interface{}) (int, error) {
	n, ok := value.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected poolLength type %T", value)
	}
	if n.Sign() < 0 || !n.IsInt64() || n.Int64() > maxPools {
		return 0, fmt.Errorf("pool length out of range: %s", n)
	}
	return int(n.Int64()), nil
}
