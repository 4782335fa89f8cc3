package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeScope/internal/api"
	"stakeScope/internal/config"
	"stakeScope/internal/watch"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	params, err := paramsFromConfig(cfg.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	watcher := watch.New(ctx, st.service, watch.WithLogger(logger), watch.WithPassTimeout(cfg.PassTimeout))
	updates, unsubscribe := watcher.Subscribe()
	defer unsubscribe()

	if params != (watch.Params{}) {
		watcher.Set(params)
	}

	server := api.New(cfg.Listen, watcher, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var tick <-chan time.Time
	if cfg.Interval > 0 {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Duration("interval", cfg.Interval),
		zap.String("account", params.Account.Hex()),
	)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
			watcher.Wait()
			return nil
		case err, ok := <-serverErr:
			if ok && err != nil {
				return err
			}
			serverErr = nil
		case <-tick:
			watcher.Refresh()
		case update := <-updates:
			st.persist(ctx, update.Params.Account, update.Tokens, logger)
		}
	}
}
