package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
DataDir = "/tmp/crosslend-test"
LocalDomain = 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "/tmp/crosslend-test", cfg.DataDir)
	require.Equal(t, uint64(5), cfg.LocalDomain)
	require.Equal(t, time.Hour, cfg.UpkeepIntervalDuration())
	require.Equal(t, 3*time.Second, cfg.OracleTimeoutDuration())
	require.Equal(t, 5*time.Minute, cfg.OracleMaxAgeDuration())
	require.Equal(t, []string{"manual"}, cfg.Oracle.Sources)
	require.Equal(t, float64(50), cfg.RPC.RateLimitPerSecond)
	require.Equal(t, 100, cfg.RPC.RateLimitBurst)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":9090"
DataDir = "./data"
LocalDomain = 2
SupportedDomains = [2, 7]
UpkeepInterval = "30m"
OracleTimeout = "2s"

[Log]
Level = "debug"
File = "/var/log/crosslend.log"

[RPC]
JWTSecret = "sekrit"
RateLimitPerSecond = 10.0
RateLimitBurst = 20

[Oracle]
Sources = ["manual", "coingecko"]
MaxAge = "1m"
FeedTimeout = "4s"
CoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price"

[Oracle.AssetIDs]
ETH = "ethereum"

[Oracle.Prices]
ETH = "2000"
USDC = "1"

[[Pools]]
Asset = "ETH"
CollateralFactorBps = 7500

[[Pools]]
Asset = "USDC"
CollateralFactorBps = 8000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.RPCAddress)
	require.Equal(t, []uint64{2, 7}, cfg.SupportedDomains)
	require.Equal(t, 30*time.Minute, cfg.UpkeepIntervalDuration())
	require.Equal(t, 2*time.Second, cfg.OracleTimeoutDuration())
	require.Equal(t, time.Minute, cfg.OracleMaxAgeDuration())
	require.Equal(t, 4*time.Second, cfg.OracleFeedTimeoutDuration())
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "sekrit", cfg.ResolveJWTSecret())
	require.Len(t, cfg.Pools, 2)
	require.Equal(t, "ETH", cfg.Pools[0].Asset)
	require.Equal(t, uint64(7500), cfg.Pools[0].CollateralFactorBps)
	require.Equal(t, "ethereum", cfg.Oracle.AssetIDs["ETH"])
	require.Equal(t, "2000", cfg.Oracle.Prices["ETH"])
}

func TestLoadRejectsInvalidDurations(t *testing.T) {
	path := writeConfig(t, `UpkeepInterval = "soon"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsPoolWithoutAsset(t *testing.T) {
	path := writeConfig(t, `
[[Pools]]
CollateralFactorBps = 7500
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, uint64(1), cfg.LocalDomain)

	// Reloading the generated file parses cleanly.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestResolveJWTSecretPrefersEnv(t *testing.T) {
	path := writeConfig(t, `
[RPC]
JWTSecret = "inline"
JWTSecretEnv = "CROSSLEND_TEST_SECRET"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	t.Setenv("CROSSLEND_TEST_SECRET", "from-env")
	require.Equal(t, "from-env", cfg.ResolveJWTSecret())

	t.Setenv("CROSSLEND_TEST_SECRET", "")
	require.Equal(t, "inline", cfg.ResolveJWTSecret())
}
