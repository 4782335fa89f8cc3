package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/multicall"
	"stakeScope/internal/pricing"
	"stakeScope/internal/tokens"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "usd", cfg.Currency)
	require.Equal(t, "dogechain", cfg.PricePlatform)
	require.Equal(t, 15*time.Second, cfg.CallTimeout)
	require.Equal(t, 10*time.Second, cfg.PriceTimeout)
	require.Equal(t, time.Duration(0), cfg.TokenCacheTTL)
	require.Empty(t, cfg.MulticallAddress)
	require.Equal(t, 0, cfg.MaxRetries)
	require.Equal(t, pricing.DefaultBaseURL, cfg.PriceAPI)
	require.Equal(t, tokens.DefaultLogoBaseURL, cfg.LogoBaseURL)
	require.Equal(t, multicall.DefaultCallTimeout, cfg.CallTimeout)
}

func TestLoadServeDefaults(t *testing.T) {
	cfg, err := LoadServe("", nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, time.Minute, cfg.PassTimeout)
	require.Equal(t, 0, cfg.MaxRetries)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("STAKESCOPE_POOL", "0x00000000000000000000000000000000000000aa")
	t.Setenv("STAKESCOPE_MULTICALL_ADDRESS", "10000=0x00000000000000000000000000000000000000bb")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("account", "", "")
	flags.Duration("call-timeout", 0, "")
	require.NoError(t, flags.Parse([]string{"--account", "0x00000000000000000000000000000000000000cc", "--call-timeout", "3s"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.StakingPool)
	require.Equal(t, "0x00000000000000000000000000000000000000cc", cfg.Account)
	require.Equal(t, 3*time.Second, cfg.CallTimeout)
	require.Equal(t, map[string]string{"10000": "0x00000000000000000000000000000000000000bb"}, cfg.MulticallAddress)
}

func TestLoadServeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakescope.yaml")
	body := "listen: \":9090\"\ninterval: 1m\nvault-share: \"0x00000000000000000000000000000000000000dd\"\nmulticall-address:\n  \"10001\": \"0x00000000000000000000000000000000000000ee\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadServe(path, nil)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, time.Minute, cfg.Interval)
	require.Equal(t, "0x00000000000000000000000000000000000000dd", cfg.VaultShare)
	require.Equal(t, "0x00000000000000000000000000000000000000ee", cfg.MulticallAddress["10001"])
}

func TestParseMulticallAddresses(t *testing.T) {
	out, err := ParseMulticallAddresses(map[string]string{"10000": "0x00000000000000000000000000000000000000bb"})
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000bb"), out[10000])

	_, err = ParseMulticallAddresses(map[string]string{"doge": "0x00000000000000000000000000000000000000bb"})
	require.Error(t, err)

	_, err = ParseMulticallAddresses(map[string]string{"10000": "nope"})
	require.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("  ")
	require.NoError(t, err)
	require.Equal(t, common.Address{}, addr)

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
}

func TestParseStringMap(t *testing.T) {
	out := parseStringMap("a=1, b = 2,broken,=3,c=")
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, out)
}
