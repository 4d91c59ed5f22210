package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration so TOML files can use strings such as "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Store backends accepted by Store.Backend.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
)

// Store selects where claim logs, roles and balances live.
type Store struct {
	Backend          string `toml:"Backend"`
	RedisAddr        string `toml:"RedisAddr,omitempty"`
	RedisDB          int    `toml:"RedisDB,omitempty"`
	RedisPasswordEnv string `toml:"RedisPasswordEnv,omitempty"`
}

// Policy holds the jar policy as written in the config file.
type Policy struct {
	PoolAddress  string   `toml:"PoolAddress"`
	CookieValue  string   `toml:"CookieValue"`
	Period       Duration `toml:"Period"`
	MaxPerPeriod uint64   `toml:"MaxPerPeriod"`
}

// Admin secures the admin HTTP surface.
type Admin struct {
	BearerToken        string  `toml:"BearerToken,omitempty"`
	BearerTokenFile    string  `toml:"BearerTokenFile,omitempty"`
	BearerTokenEnv     string  `toml:"BearerTokenEnv,omitempty"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}

// Indexer configures the SQL event indexer. An empty Path disables it.
type Indexer struct {
	Path      string `toml:"Path,omitempty"`
	QueueSize int    `toml:"QueueSize,omitempty"`
}
