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
//	-a string   base URL of the system of record
//	-e string   base URL of the ERP product API
//	-d string   path to the local database file
//	-t int      per-call network timeout in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-e", "-d", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the system of record")
	fs.StringVar(&cfg.ERPEndpointAddr, "e", cfg.ERPEndpointAddr, "base URL of the ERP product API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database file")
	callTimeout := fs.Int("t", int(cfg.CallTimeout.Seconds()), "per-call network timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.CallTimeout = time.Duration(*callTimeout) * time.Second
}
