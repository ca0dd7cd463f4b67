package main

import (
	"context"
	"log"

	"github.com/avolkov/seedtrack/internal/device/cli"
	"github.com/avolkov/seedtrack/internal/device/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(context.Background())
}
