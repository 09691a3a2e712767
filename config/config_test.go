package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.FreezeMaxBalance)
	require.Equal(t, 7, cfg.FreezeGrantEvery)
	require.Equal(t, int64(700), cfg.PlatformFeeBps)
	require.Equal(t, 2*time.Minute, cfg.SweepInterval)
	require.Equal(t, time.UTC, cfg.Location())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad timezone":     func(c *Config) { c.EngineTimezone = "Mars/Olympus" },
		"fee above 100%":   func(c *Config) { c.PlatformFeeBps = 10001 },
		"negative fee":     func(c *Config) { c.PlatformFeeBps = -1 },
		"zero grant every": func(c *Config) { c.FreezeGrantEvery = 0 },
		"zero quorum":      func(c *Config) { c.VerificationQuorum = 0 },
		"same accounts":    func(c *Config) { c.CharityAccountID = c.PlatformAccountID },
		"http without url": func(c *Config) { c.PayoutProvider = "http"; c.PayoutBaseURL = "" },
		"zero attempts":    func(c *Config) { c.PayoutMaxAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENGINE_TIMEZONE", "America/New_York")
	t.Setenv("PLATFORM_FEE_BPS", "500")
	t.Setenv("SWEEP_INTERVAL", "30s")
	prev := Cfg
	t.Cleanup(func() { Cfg = prev })

	require.NoError(t, Load())
	require.Equal(t, int64(500), Cfg.PlatformFeeBps)
	require.Equal(t, 30*time.Second, Cfg.SweepInterval)
	require.Equal(t, "America/New_York", Cfg.Location().String())
}

func TestReplicaDSN(t *testing.T) {
	cfg := Default()
	cfg.PostgreSQLReplicaHost = ""
	require.Empty(t, cfg.GetReplicaDSN())

	cfg.PostgreSQLReplicaHost = "replica"
	require.Contains(t, cfg.GetReplicaDSN(), "host=replica")
	require.Contains(t, cfg.GetDSN(), "host="+cfg.PostgreSQLHost)
}
