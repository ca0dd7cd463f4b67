package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avolkov/seedtrack/internal/flagx"
	"github.com/avolkov/seedtrack/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify the bundle TTL either as a string like
// "72h" or as integer nanoseconds.
type JsonConfig struct {
	EndpointAddr string         `json:"endpoint_addr"`
	DatabaseDSN  string         `json:"database_dsn"`
	BundleTTL    timex.Duration `json:"bundle_ttl"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. With no such flag the function is a no-op.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.EndpointAddr != "" {
		cfg.EndpointAddr = jc.EndpointAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.BundleTTL.Duration > 0 {
		cfg.BundleTTL = time.Duration(jc.BundleTTL.Duration)
	}
}
