package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeScope/internal/chain"
	"stakeScope/internal/config"
	"stakeScope/internal/model"
	"stakeScope/internal/multicall"
	"stakeScope/internal/positions"
	"stakeScope/internal/pricing"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/postgres"
	"stakeScope/internal/tokens"
	"stakeScope/internal/watch"
)

// stack is the wired aggregation service and its resources.
type stack struct {
	chainID uint64
	chain   *chain.Client
	service *positions.Service
	sinks   storage.Multi
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStack(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stack, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	overrides, err := config.ParseMulticallAddresses(cfg.MulticallAddress)
	if err != nil {
		return nil, err
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.WithRetry(cfg.MaxRetries, cfg.RetryBackoff))
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	st := &stack{chain: chainClient, closers: []func(){chainClient.Close}}

	id, err := chainClient.ChainID(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	st.chainID = id.Uint64()

	multicallAddr, err := multicall.ResolveAddress(ctx, chainClient, overrides)
	if err != nil {
		st.Close()
		return nil, err
	}

	executor := multicall.NewExecutor(chainClient, multicallAddr,
		multicall.WithCallTimeout(cfg.CallTimeout),
		multicall.WithLogger(logger),
	)
	cache := tokens.NewCache(executor,
		tokens.WithLogoBaseURL(cfg.LogoBaseURL),
		tokens.WithTTL(cfg.TokenCacheTTL),
		tokens.WithLogger(logger),
	)
	prices := pricing.NewClient(cfg.PriceAPI,
		pricing.WithPlatform(cfg.PricePlatform),
		pricing.WithCurrency(cfg.Currency),
		pricing.WithTimeout(cfg.PriceTimeout),
		pricing.WithLogger(logger),
	)
	st.service = positions.NewService(executor, cache, prices,
		positions.WithPriceTimeout(cfg.PriceTimeout),
		positions.WithLogger(logger),
	)

	if cfg.Out != "" {
		st.sinks = append(st.sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, store.Close)
		st.sinks = append(st.sinks, store)
	}

	logger.Info("aggregator ready",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", st.chainID),
		zap.String("multicall", multicallAddr.Hex()),
		zap.Int("sinks", len(st.sinks)),
	)
	return st, nil
}

func paramsFromConfig(cfg config.Config) (watch.Params, error) {
	var params watch.Params
	fields := []struct {
		value string
		dst   *common.Address
	}{
		{cfg.StakingPool, &params.StakingPool},
		{cfg.VaultUnderlying, &params.VaultUnderlying},
		{cfg.VaultShare, &params.VaultShare},
		{cfg.Account, &params.Account},
	}
	for _, field := range fields {
		addr, err := config.ParseAddress(field.value)
		if err != nil {
			return watch.Params{}, err
		}
		*field.dst = addr
	}
	return params, nil
}

func (s *stack) persist(ctx context.Context, account common.Address, tokens []model.StakedToken, logger *zap.Logger) {
	if len(s.sinks) == 0 || len(tokens) == 0 {
		return
	}
	snapshots := storage.Snapshots(s.chainID, account, tokens, time.Now())
	if err := s.sinks.PutSnapshotBatch(ctx, snapshots); err != nil {
		logger.Warn("snapshot write failed", zap.Error(err))
		return
	}
	logger.Debug("snapshots written", zap.Int("count", len(snapshots)))
}
