package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	RPCAddress       string   `toml:"RPCAddress"`
	DataDir          string   `toml:"DataDir"`
	NetworkName      string   `toml:"NetworkName"`
	LocalDomain      uint64   `toml:"LocalDomain"`
	SupportedDomains []uint64 `toml:"SupportedDomains"`
	UpkeepInterval   string   `toml:"UpkeepInterval"`
	OracleTimeout    string   `toml:"OracleTimeout"`

	Log    LogConfig    `toml:"Log"`
	RPC    RPCConfig    `toml:"RPC"`
	Oracle OracleConfig `toml:"Oracle"`
	Pools  []PoolConfig `toml:"Pools"`
}

// LogConfig controls structured log output and file rotation.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RPCConfig controls the HTTP API surface.
type RPCConfig struct {
	JWTSecret          string  `toml:"JWTSecret"`
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// OracleConfig selects and parameterizes the price feeds. Prices maps asset
// symbols to decimal USD prices for the manual feed; AssetIDs maps symbols to
// CoinGecko coin ids.
type OracleConfig struct {
	Sources      []string          `toml:"Sources"`
	MaxAge       string            `toml:"MaxAge"`
	FeedTimeout  string            `toml:"FeedTimeout"`
	CoinGeckoURL string            `toml:"CoinGeckoURL"`
	AssetIDs     map[string]string `toml:"AssetIDs"`
	Prices       map[string]string `toml:"Prices"`
}

// PoolConfig seeds a lending pool at startup.
type PoolConfig struct {
	Asset               string `toml:"Asset"`
	CollateralFactorBps uint64 `toml:"CollateralFactorBps"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./crosslend-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "crosslend-local"
	}
	if strings.TrimSpace(c.UpkeepInterval) == "" {
		c.UpkeepInterval = "1h"
	}
	if strings.TrimSpace(c.OracleTimeout) == "" {
		c.OracleTimeout = "3s"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.RPC.RateLimitPerSecond <= 0 {
		c.RPC.RateLimitPerSecond = 50
	}
	if c.RPC.RateLimitBurst <= 0 {
		c.RPC.RateLimitBurst = 100
	}
	if len(c.Oracle.Sources) == 0 {
		c.Oracle.Sources = []string{"manual"}
	}
	if strings.TrimSpace(c.Oracle.MaxAge) == "" {
		c.Oracle.MaxAge = "5m"
	}
	if strings.TrimSpace(c.Oracle.FeedTimeout) == "" {
		c.Oracle.FeedTimeout = "5s"
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.UpkeepInterval); err != nil {
		return fmt.Errorf("config: invalid UpkeepInterval: %w", err)
	}
	if _, err := time.ParseDuration(c.OracleTimeout); err != nil {
		return fmt.Errorf("config: invalid OracleTimeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Oracle.MaxAge); err != nil {
		return fmt.Errorf("config: invalid Oracle.MaxAge: %w", err)
	}
	if _, err := time.ParseDuration(c.Oracle.FeedTimeout); err != nil {
		return fmt.Errorf("config: invalid Oracle.FeedTimeout: %w", err)
	}
	for _, pool := range c.Pools {
		if strings.TrimSpace(pool.Asset) == "" {
			return fmt.Errorf("config: pool entry missing Asset")
		}
	}
	return nil
}

// UpkeepIntervalDuration returns the parsed upkeep interval.
func (c *Config) UpkeepIntervalDuration() time.Duration {
	return mustDuration(c.UpkeepInterval, time.Hour)
}

// OracleTimeoutDuration returns the parsed per-operation oracle deadline.
func (c *Config) OracleTimeoutDuration() time.Duration {
	return mustDuration(c.OracleTimeout, 3*time.Second)
}

// OracleMaxAgeDuration returns the parsed quote staleness bound.
func (c *Config) OracleMaxAgeDuration() time.Duration {
	return mustDuration(c.Oracle.MaxAge, 5*time.Minute)
}

// OracleFeedTimeoutDuration returns the parsed per-feed call deadline.
func (c *Config) OracleFeedTimeoutDuration() time.Duration {
	return mustDuration(c.Oracle.FeedTimeout, 5*time.Second)
}

// ResolveJWTSecret returns the API signing secret, preferring the environment
// variable named by JWTSecretEnv over the inline value.
func (c *Config) ResolveJWTSecret() string {
	if env := strings.TrimSpace(c.RPC.JWTSecretEnv); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return c.RPC.JWTSecret
}

func mustDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       ":8080",
		DataDir:          "./crosslend-data",
		NetworkName:      "crosslend-local",
		LocalDomain:      1,
		SupportedDomains: []uint64{1},
		UpkeepInterval:   "1h",
		OracleTimeout:    "3s",
		Log: LogConfig{
			Level: "info",
		},
		RPC: RPCConfig{
			JWTSecretEnv:       "CROSSLEND_JWT_SECRET",
			RateLimitPerSecond: 50,
			RateLimitBurst:     100,
		},
		Oracle: OracleConfig{
			Sources:     []string{"manual"},
			MaxAge:      "5m",
			FeedTimeout: "5s",
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
