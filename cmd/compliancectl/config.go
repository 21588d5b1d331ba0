package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "COMPLIANCECTL"

// cliConfig is resolved from flags, COMPLIANCECTL_* env vars and an optional
// config file, in that order of precedence.
type cliConfig struct {
	Server  string        `mapstructure:"server"`
	Timeout time.Duration `mapstructure:"timeout"`
	Output  string        `mapstructure:"output"`
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(
		viper.KeyDelimiter("."),
		viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")),
	)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("output", "text")
	return v
}

// loadConfig reads cfgFile when set, otherwise .compliancectl.yaml from the
// working or home directory if one exists.
func loadConfig(v *viper.Viper, cfgFile, home string) (cliConfig, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".compliancectl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home != "" {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return cliConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("decode config: %w", err)
	}
	switch cfg.Output {
	case "text", "json":
	default:
		return cliConfig{}, fmt.Errorf("output must be text or json, got %q", cfg.Output)
	}
	return cfg, nil
}
