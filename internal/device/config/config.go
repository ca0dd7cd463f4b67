// Package config holds runtime settings for the device application. Values
// are resolved defaults first, then a JSON file, then command-line flags;
// later sources win.
package config

import "time"

type Config struct {
	// ServerEndpointAddr is the base URL of the system of record.
	ServerEndpointAddr string

	// ERPEndpointAddr is the base URL of the hospital ERP product API.
	ERPEndpointAddr string

	// DatabasePath is the on-disk location of the encrypted local store.
	DatabasePath string

	// CallTimeout bounds every individual network call during sync.
	CallTimeout time.Duration

	// MaxStorageBytes caps the size of the local store database file.
	MaxStorageBytes int64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.ERPEndpointAddr = "http://127.0.0.1:8090"
	c.DatabasePath = "seedtrack.db"
	c.CallTimeout = 10 * time.Second
	c.MaxStorageBytes = 256 << 20
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
