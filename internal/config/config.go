// Package config loads anbar's configuration, layering flags over
// environment variables over an optional YAML file.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds everything the server needs to start.
type Config struct {
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	KVEngine string `mapstructure:"kv_engine"` // "pebble" (default) or "badger"

	AllowAnonymous  bool   `mapstructure:"allow_anonymous"`
	AnonymousUserID string `mapstructure:"anonymous_user_id"`

	Metrics MetricsConfig `mapstructure:"metrics"`

	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	Diag DiagConfig `mapstructure:"diag"`
}

// DiagConfig controls the /_anbar/status diagnostics endpoint.
type DiagConfig struct {
	Enable            bool   `mapstructure:"enable"`
	PasswordHashHex   string `mapstructure:"password_hash_hex"`
	SessionSigningKey string `mapstructure:"session_signing_key"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Load resolves configuration from cmd's flags, ANBAR_-prefixed
// environment variables, and an optional --config file, in that order of
// decreasing precedence: an explicitly set flag wins over the environment,
// which wins over the file; built-in defaults apply last.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ANBAR")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir must be configured (--data-dir, ANBAR_DATA_DIR, or config file)")
	}
	if cfg.AllowAnonymous && cfg.AnonymousUserID == "" {
		return nil, fmt.Errorf("anonymous_user_id must be set when allow_anonymous is true")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("kv_engine", "pebble")
	v.SetDefault("allow_anonymous", false)
	v.SetDefault("anonymous_user_id", "")
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("enable_tls", false)
	v.SetDefault("diag.enable", false)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":            "listen",
		"data-dir":          "data_dir",
		"log-level":         "log_level",
		"kv-engine":         "kv_engine",
		"allow-anonymous":   "allow_anonymous",
		"anonymous-user-id": "anonymous_user_id",
		"tls-cert":          "cert_file",
		"tls-key":           "key_file",
	}
	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}
