package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig adds the long-running server settings to Config.
type ServeConfig struct {
	Config
	Listen      string
	Interval    time.Duration
	PassTimeout time.Duration
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{
		Config:      fromViper(v),
		Listen:      v.GetString("listen"),
		Interval:    v.GetDuration("interval"),
		PassTimeout: v.GetDuration("pass-timeout"),
	}, nil
}
