package config

// Logging controls the structured logger.
type Logging struct {
	Level string `toml:"Level"`
	// File enables rotated file output in addition to stdout when set.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RateLimit bounds requests per client on the HTTP API.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// RPC holds HTTP server timeouts, in seconds.
type RPC struct {
	ReadHeaderTimeout int `toml:"ReadHeaderTimeout"`
	ReadTimeout       int `toml:"ReadTimeout"`
	WriteTimeout      int `toml:"WriteTimeout"`
	IdleTimeout       int `toml:"IdleTimeout"`
	// MaxBodyBytes caps the size of a submitted transaction.
	MaxBodyBytes int64 `toml:"MaxBodyBytes"`
}
