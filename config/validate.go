package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the loaded configuration for values the daemon cannot run
// with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendLevelDB:
	case BackendRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return fmt.Errorf("store: RedisAddr must be configured for the redis backend")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}
	if !common.IsHexAddress(strings.TrimSpace(c.Policy.PoolAddress)) {
		return fmt.Errorf("policy: PoolAddress %q is not a hex address", c.Policy.PoolAddress)
	}
	if _, err := c.Policy.CookieValueUnits(); err != nil {
		return fmt.Errorf("policy: invalid CookieValue: %w", err)
	}
	if c.Policy.Period.Duration < time.Second {
		return fmt.Errorf("policy: Period must be at least 1s")
	}
	if c.Policy.Period.Duration%time.Second != 0 {
		return fmt.Errorf("policy: Period must be a whole number of seconds")
	}
	if c.Admin.BearerToken == "" {
		return fmt.Errorf("admin: configure BearerToken, BearerTokenFile or BearerTokenEnv")
	}
	if c.Admin.RateLimitPerSecond < 0 || c.Admin.RateLimitBurst < 0 {
		return fmt.Errorf("admin: rate limits must not be negative")
	}
	return nil
}

// Pool returns the configured pool address.
func (p Policy) Pool() common.Address {
	return common.HexToAddress(strings.TrimSpace(p.PoolAddress))
}

// CookieValueUnits parses CookieValue into a positive base-unit amount.
func (p Policy) CookieValueUnits() (*big.Int, error) {
	value, err := parseUintAmount(p.CookieValue)
	if err != nil {
		return nil, err
	}
	if value.Sign() == 0 {
		return nil, fmt.Errorf("must be positive")
	}
	return value, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return parsed, nil
}
