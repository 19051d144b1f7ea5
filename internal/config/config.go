// Package config resolves controller settings from an optional
// groupmix config file plus GROUPMIX_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// #region types

// Config is everything the controller needs at startup.
type Config struct {
	EnginePrimaryURL  string
	EngineFallbackURL string
	DialTimeout       time.Duration
	StorePath         string
}

// #endregion

// #region load

// Load resolves configuration from the injected viper instance. Pass
// nil to get a fresh one (the normal case); tests inject their own.
// Precedence: environment > config file > defaults.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetDefault("engine.primary_url", "ws://127.0.0.1:8973/engine")
	v.SetDefault("engine.fallback_url", "ws://127.0.0.1:8974/engine")
	v.SetDefault("engine.dial_timeout_seconds", 10)
	v.SetDefault("store.path", "groupmix.db")

	v.SetEnvPrefix("GROUPMIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("groupmix")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/groupmix")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		EnginePrimaryURL:  v.GetString("engine.primary_url"),
		EngineFallbackURL: v.GetString("engine.fallback_url"),
		DialTimeout:       time.Duration(v.GetFloat64("engine.dial_timeout_seconds") * float64(time.Second)),
		StorePath:         v.GetString("store.path"),
	}
	if cfg.EnginePrimaryURL == "" {
		return Config{}, fmt.Errorf("config: engine.primary_url is required")
	}
	return cfg, nil
}

// #endregion
