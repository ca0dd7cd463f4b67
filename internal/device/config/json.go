package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avolkov/seedtrack/internal/flagx"
	"github.com/avolkov/seedtrack/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify timeouts either as strings like "10s" or
// as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	ERPEndpointAddr    string         `json:"erp_endpoint_addr"`
	DatabasePath       string         `json:"database_path"`
	CallTimeout        timex.Duration `json:"call_timeout"`
	MaxStorageBytes    int64          `json:"max_storage_bytes"`
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

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.ERPEndpointAddr != "" {
		cfg.ERPEndpointAddr = jc.ERPEndpointAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.CallTimeout.Duration > 0 {
		cfg.CallTimeout = time.Duration(jc.CallTimeout.Duration)
	}
	if jc.MaxStorageBytes > 0 {
		cfg.MaxStorageBytes = jc.MaxStorageBytes
	}
}
