package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stakeScope/internal/multicall"
	"stakeScope/internal/pricing"
	"stakeScope/internal/tokens"
)

func main() {
	root := &cobra.Command{
		Use:          "stakescope",
		Short:        "Staking pool and vault position aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	positionsCmd := &cobra.Command{
		Use:   "positions",
		Short: "Print the account's staked positions as JSON",
		RunE:  runPositions,
	}
	addCommonFlags(positionsCmd)
	root.AddCommand(positionsCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve positions over HTTP and refresh them periodically",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("interval", 30*time.Second, "refresh interval, 0 disables polling")
	serveCmd.Flags().Duration("pass-timeout", time.Minute, "timeout per refresh, 0 disables it")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().StringToString("multicall-address", nil, "Multicall2 address overrides (chainID=address, comma-separated)")
	cmd.Flags().String("pool", "", "staking pool (MasterChef) address")
	cmd.Flags().String("vault-token", "", "vault underlying token address")
	cmd.Flags().String("vault-share", "", "vault share token address")
	cmd.Flags().String("account", "", "account (Safe) address")
	cmd.Flags().String("price-api", pricing.DefaultBaseURL, "price API base URL")
	cmd.Flags().String("price-platform", pricing.DefaultPlatform, "price API platform id")
	cmd.Flags().String("currency", pricing.DefaultCurrency, "fiat currency")
	cmd.Flags().String("logo-base-url", tokens.DefaultLogoBaseURL, "token logo base URL")
	cmd.Flags().Duration("call-timeout", multicall.DefaultCallTimeout, "timeout per multicall")
	cmd.Flags().Duration("price-timeout", pricing.DefaultTimeout, "timeout per price lookup")
	cmd.Flags().Duration("token-cache-ttl", 0, "token metadata cache TTL, 0 never expires")
	cmd.Flags().Int("max-retries", 0, "RPC retry attempts for transport failures, 0 disables retries")
	cmd.Flags().Duration("retry-backoff", 250*time.Millisecond, "initial RPC retry backoff")
	cmd.Flags().String("out", "", "optional snapshot JSONL path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for snapshots")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
