package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stakeScope/internal/multicall"
	"stakeScope/internal/pricing"
	"stakeScope/internal/tokens"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	MulticallAddress map[string]string
	StakingPool      string
	VaultUnderlying  string
	VaultShare       string
	Account          string
	PriceAPI         string
	PricePlatform    string
	Currency         string
	LogoBaseURL      string
	CallTimeout      time.Duration
	PriceTimeout     time.Duration
	TokenCacheTTL    time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	Out              string
	PGDSN            string
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("price-api", pricing.DefaultBaseURL)
	v.SetDefault("price-platform", pricing.DefaultPlatform)
	v.SetDefault("currency", pricing.DefaultCurrency)
	v.SetDefault("logo-base-url", tokens.DefaultLogoBaseURL)
	v.SetDefault("call-timeout", multicall.DefaultCallTimeout)
	v.SetDefault("price-timeout", pricing.DefaultTimeout)
	v.SetDefault("token-cache-ttl", time.Duration(0))
	v.SetDefault("max-retries", 0)
	v.SetDefault("retry-backoff", 250*time.Millisecond)
	v.SetDefault("interval", 30*time.Second)
	v.SetDefault("pass-timeout", time.Minute)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		RPCURL:           v.GetString("rpc"),
		MulticallAddress: getStringMap(v, "multicall-address"),
		StakingPool:      v.GetString("pool"),
		VaultUnderlying:  v.GetString("vault-token"),
		VaultShare:       v.GetString("vault-share"),
		Account:          v.GetString("account"),
		PriceAPI:         v.GetString("price-api"),
		PricePlatform:    v.GetString("price-platform"),
		Currency:         v.GetString("currency"),
		LogoBaseURL:      v.GetString("logo-base-url"),
		CallTimeout:      v.GetDuration("call-timeout"),
		PriceTimeout:     v.GetDuration("price-timeout"),
		TokenCacheTTL:    v.GetDuration("token-cache-ttl"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Out:              v.GetString("out"),
		PGDSN:            v.GetString("pg-dsn"),
		LogLevel:         v.GetString("log-level"),
	}
}

// ParseAddress converts an optional hex address; empty input yields the zero address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ParseMulticallAddresses converts chainID=address pairs into an override table.
func ParseMulticallAddresses(input map[string]string) (map[uint64]common.Address, error) {
	out := make(map[uint64]common.Address, len(input))
	for key, value := range input {
		chainID, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", key, err)
		}
		addr, err := ParseAddress(value)
		if err != nil {
			return nil, err
		}
		if addr == (common.Address{}) {
			continue
		}
		out[chainID] = addr
	}
	return out, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
