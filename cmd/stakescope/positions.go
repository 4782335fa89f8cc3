package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stakeScope/internal/config"
	"stakeScope/internal/model"
)

func runPositions(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	params, err := paramsFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		vault, pool []model.StakedToken
		g           errgroup.Group
	)
	g.Go(func() error {
		var err error
		vault, err = st.service.VaultTokens(ctx, params.VaultUnderlying, params.VaultShare, params.Account)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = st.service.StakingPoolTokens(ctx, params.StakingPool, params.Account)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	combined := append(vault, pool...)
	logger.Info("positions resolved",
		zap.String("account", params.Account.Hex()),
		zap.Int("vault", len(vault)),
		zap.Int("staking_pool", len(pool)),
	)
	st.persist(ctx, params.Account, combined, logger)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(combined)
}
