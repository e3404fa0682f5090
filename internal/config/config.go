// Package config resolves node configuration from flags, environment
// variables, and defaults, in that precedence order. Environment variables
// carry the REPLOG_ prefix with underscores in place of flag dashes, so
// --sync-poll-interval-secs becomes REPLOG_SYNC_POLL_INTERVAL_SECS.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Node roles. A single binary serves either role; only the enabled
// components differ.
const (
	RolePrimary   = "master"
	RoleSecondary = "secondary"
)

// Config is the resolved configuration for one node.
type Config struct {
	Role        string
	Addr        string
	Secondaries []string

	ReplTimeout time.Duration
	ReplDelay   time.Duration
	ReplRetries int

	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	SuspectThreshold   int
	UnhealthyThreshold int

	SyncPollInterval time.Duration
	RequireQuorum    bool
}

// IsPrimary reports whether this node accepts client writes.
func (c Config) IsPrimary() bool {
	return c.Role == RolePrimary
}

// Load resolves the configuration. flags may be nil (defaults and
// environment only); when given, set flags win over environment variables.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REPLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("role", RolePrimary)
	v.SetDefault("addr", ":8000")
	v.SetDefault("secondaries", []string{})
	v.SetDefault("repl-timeout-secs", 30.0)
	v.SetDefault("repl-delay-secs", 0.0)
	v.SetDefault("repl-retries", 2)
	v.SetDefault("heartbeat-interval-secs", 5.0)
	v.SetDefault("heartbeat-timeout-secs", 2.0)
	v.SetDefault("suspect-threshold", 2)
	v.SetDefault("unhealthy-threshold", 4)
	v.SetDefault("sync-poll-interval-secs", 2.0)
	v.SetDefault("require-quorum", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := Config{
		Role:               v.GetString("role"),
		Addr:               v.GetString("addr"),
		Secondaries:        v.GetStringSlice("secondaries"),
		ReplTimeout:        secs(v.GetFloat64("repl-timeout-secs")),
		ReplDelay:          secs(v.GetFloat64("repl-delay-secs")),
		ReplRetries:        v.GetInt("repl-retries"),
		HeartbeatInterval:  secs(v.GetFloat64("heartbeat-interval-secs")),
		HeartbeatTimeout:   secs(v.GetFloat64("heartbeat-timeout-secs")),
		SuspectThreshold:   v.GetInt("suspect-threshold"),
		UnhealthyThreshold: v.GetInt("unhealthy-threshold"),
		SyncPollInterval:   secs(v.GetFloat64("sync-poll-interval-secs")),
		RequireQuorum:      v.GetBool("require-quorum"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations no node could run with.
func (c Config) Validate() error {
	if c.Role != RolePrimary && c.Role != RoleSecondary {
		return fmt.Errorf("invalid role %q: must be %q or %q", c.Role, RolePrimary, RoleSecondary)
	}
	for _, s := range c.Secondaries {
		u, err := url.Parse(s)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("invalid secondary URL %q: must be absolute", s)
		}
	}
	if c.ReplTimeout <= 0 {
		return fmt.Errorf("repl-timeout-secs must be positive, got %s", c.ReplTimeout)
	}
	if c.ReplDelay < 0 {
		return fmt.Errorf("repl-delay-secs must not be negative, got %s", c.ReplDelay)
	}
	if c.ReplRetries < 1 {
		return fmt.Errorf("repl-retries must be at least 1, got %d", c.ReplRetries)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= 0 || c.SyncPollInterval <= 0 {
		return fmt.Errorf("heartbeat and sync intervals must be positive")
	}
	if c.SuspectThreshold < 1 || c.UnhealthyThreshold <= c.SuspectThreshold {
		return fmt.Errorf("thresholds must satisfy 1 <= suspect (%d) < unhealthy (%d)",
			c.SuspectThreshold, c.UnhealthyThreshold)
	}
	return nil
}

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
