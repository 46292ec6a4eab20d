package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks that the configuration can start a node.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must be set")
	}
	if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))]; !ok {
		return fmt.Errorf("config: logging.Level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionYears == 0 {
		return fmt.Errorf("config: rent parameters must be positive")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit values must not be negative")
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("config: rate limit burst must be positive when a rate is set")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: rpc.MaxBodyBytes must be positive")
	}
	return nil
}
