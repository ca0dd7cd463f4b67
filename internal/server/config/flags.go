package config

import (
	"flag"
	"os"
	"time"

	"github.com/avolkov/seedtrack/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP API listen address
//	-d string   postgres connection string
//	-b int      bundle TTL in hours
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointAddr, "a", cfg.EndpointAddr, "HTTP API listen address")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "postgres connection string")
	bundleTTL := fs.Int("b", int(cfg.BundleTTL.Hours()), "bundle TTL (in hours)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.BundleTTL = time.Duration(*bundleTTL) * time.Hour
}
