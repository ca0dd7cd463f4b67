// Package server initializes and runs the system-of-record server. It opens
// the postgres database, applies migrations, and serves the sync HTTP API
// until interrupted.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/server/config"
	"github.com/avolkov/seedtrack/internal/server/httpapi"
	"github.com/avolkov/seedtrack/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON("server")

	db, err := OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	bundles := services.NewBundleService(db, cfg.BundleTTL, logger)
	push := services.NewPushService(db, logger)
	server := httpapi.NewServer(bundles, push, logger)

	return &App{config: cfg, logger: logger, db: db, server: server}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start(app.config.EndpointAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			app.logger.Error(ctx, "server failed", "error", err.Error())
		}
	case <-ctx.Done():
		app.logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
