// Package config loads peervault's on-disk YAML configuration, with
// environment overrides applied after parse.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GCConfig controls garbage collection thresholds.
type GCConfig struct {
	Enabled              bool `yaml:"enabled"`
	MaxDocSizeMB         int  `yaml:"max_doc_size_mb"`
	MinHistoryDays       int  `yaml:"min_history_days"`
	RequirePeerConsensus bool `yaml:"require_peer_consensus"`
}

// CryptoConfig selects the AEAD suite and key derivation cost.
type CryptoConfig struct {
	Suite      string `yaml:"suite"` // "aes-gcm" or "xchacha20-poly1305"
	ScryptCost int    `yaml:"scrypt_cost"`
}

// CloudConfig configures the optional object-storage sync layer.
type CloudConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Config is the top-level configuration for a peervault daemon instance.
type Config struct {
	DataDir string       `yaml:"data_dir"`
	Listen  string       `yaml:"listen"`
	GC      GCConfig     `yaml:"gc"`
	Crypto  CryptoConfig `yaml:"crypto"`
	Cloud   CloudConfig  `yaml:"cloud"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Listen:  "0.0.0.0:7420",
		GC: GCConfig{
			Enabled:              true,
			MaxDocSizeMB:         50,
			MinHistoryDays:       7,
			RequirePeerConsensus: true,
		},
		Crypto: CryptoConfig{
			Suite:      "aes-gcm",
			ScryptCost: 32768,
		},
	}
}

// Load reads a YAML config file at path, falling back to Default when path
// is empty, then applies PEERVAULT_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config: data_dir must not be empty")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PEERVAULT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PEERVAULT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PEERVAULT_GC_ENABLED"); v != "" {
		cfg.GC.Enabled = parseBool(v, cfg.GC.Enabled)
	}
	if v := os.Getenv("PEERVAULT_CRYPTO_SUITE"); v != "" {
		cfg.Crypto.Suite = strings.ToLower(v)
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
