package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"escrowvault/core/types"
)

// Config is the node configuration read from a TOML file.
type Config struct {
	RPCAddress  string     `toml:"RPCAddress"`
	DataDir     string     `toml:"DataDir"`
	GenesisFile string     `toml:"GenesisFile"`
	Environment string     `toml:"Environment"`
	Logging     Logging    `toml:"logging"`
	Rent        types.Rent `toml:"rent"`
	RateLimit   RateLimit  `toml:"ratelimit"`
	RPC         RPC        `toml:"rpc"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8899",
		DataDir:     "./escrow-data",
		GenesisFile: "",
		Environment: "local",
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Rent: types.DefaultRent(),
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             60,
		},
		RPC: RPC{
			ReadHeaderTimeout: 5,
			ReadTimeout:       15,
			WriteTimeout:      15,
			IdleTimeout:       60,
			MaxBodyBytes:      1 << 20,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults. Fields absent from an existing file keep their
// default values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
