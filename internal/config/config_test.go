package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, RolePrimary, cfg.Role)
	require.Equal(t, ":8000", cfg.Addr)
	require.Empty(t, cfg.Secondaries)
	require.Equal(t, 30*time.Second, cfg.ReplTimeout)
	require.Equal(t, time.Duration(0), cfg.ReplDelay)
	require.Equal(t, 2, cfg.ReplRetries)
	require.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 2*time.Second, cfg.HeartbeatTimeout)
	require.Equal(t, 2, cfg.SuspectThreshold)
	require.Equal(t, 4, cfg.UnhealthyThreshold)
	require.Equal(t, 2*time.Second, cfg.SyncPollInterval)
	require.False(t, cfg.RequireQuorum)
	require.True(t, cfg.IsPrimary())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("REPLOG_ROLE", "secondary")
	t.Setenv("REPLOG_REPL_DELAY_SECS", "1.5")
	t.Setenv("REPLOG_SUSPECT_THRESHOLD", "3")
	t.Setenv("REPLOG_UNHEALTHY_THRESHOLD", "6")

	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, RoleSecondary, cfg.Role)
	require.False(t, cfg.IsPrimary())
	require.Equal(t, 1500*time.Millisecond, cfg.ReplDelay)
	require.Equal(t, 3, cfg.SuspectThreshold)
	require.Equal(t, 6, cfg.UnhealthyThreshold)
}

func TestLoadFlagsWinOverEnvironment(t *testing.T) {
	t.Setenv("REPLOG_ADDR", ":9999")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8000", "")
	require.NoError(t, flags.Set("addr", ":7070"))

	cfg, err := Load(flags)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Addr)
}

func TestLoadSecondariesFromEnv(t *testing.T) {
	t.Setenv("REPLOG_SECONDARIES", "http://s1:8000 http://s2:8000")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"http://s1:8000", "http://s2:8000"}, cfg.Secondaries)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base, err := Load(nil)
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown role", func(c *Config) { c.Role = "replica" }},
		{"relative secondary URL", func(c *Config) { c.Secondaries = []string{"s1:8000"} }},
		{"zero repl timeout", func(c *Config) { c.ReplTimeout = 0 }},
		{"negative repl delay", func(c *Config) { c.ReplDelay = -time.Second }},
		{"zero repl retries", func(c *Config) { c.ReplRetries = 0 }},
		{"zero heartbeat interval", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"unhealthy below suspect", func(c *Config) { c.SuspectThreshold = 4; c.UnhealthyThreshold = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
