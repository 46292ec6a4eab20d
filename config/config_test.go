package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8899" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if cfg.Rent.LamportsPerByteYear != 3480 || cfg.Rent.ExemptionYears != 2 {
		t.Fatalf("unexpected rent %+v", cfg.Rent)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *reloaded != *cfg {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "/var/lib/escrow"
GenesisFile = "genesis.yaml"

[logging]
Level = "DEBUG"
File = "/var/log/escrowd.log"

[rent]
LamportsPerByteYear = 10
ExemptionYears = 1

[ratelimit]
RequestsPerMinute = 30
Burst = 5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" || cfg.DataDir != "/var/lib/escrow" || cfg.GenesisFile != "genesis.yaml" {
		t.Fatalf("top-level fields not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "/var/log/escrowd.log" {
		t.Fatalf("logging not applied: %+v", cfg.Logging)
	}
	if cfg.Logging.MaxBackups != 5 {
		t.Fatalf("expected default MaxBackups to survive, got %d", cfg.Logging.MaxBackups)
	}
	if cfg.Rent.MinimumBalance(0) != 128*10 {
		t.Fatalf("rent not applied: %+v", cfg.Rent)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 || cfg.RateLimit.Burst != 5 {
		t.Fatalf("rate limit not applied: %+v", cfg.RateLimit)
	}
	if cfg.RPC.MaxBodyBytes != 1<<20 {
		t.Fatalf("expected default body limit, got %d", cfg.RPC.MaxBodyBytes)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"empty data dir":  func(c *Config) { c.DataDir = " " },
		"bad log level":   func(c *Config) { c.Logging.Level = "verbose" },
		"zero rent":       func(c *Config) { c.Rent.ExemptionYears = 0 },
		"negative rate":   func(c *Config) { c.RateLimit.RequestsPerMinute = -1 },
		"rate w/o burst":  func(c *Config) { c.RateLimit.Burst = 0 },
		"zero body limit": func(c *Config) { c.RPC.MaxBodyBytes = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
