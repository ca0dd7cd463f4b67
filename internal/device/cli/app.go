// Package cli implements the interactive applicator-tracking console used on
// clinic devices. It talks to the service layer only; all persistence and
// sync mechanics live below it.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/avolkov/seedtrack/internal/device/config"
	"github.com/avolkov/seedtrack/internal/device/erp"
	"github.com/avolkov/seedtrack/internal/device/identity"
	"github.com/avolkov/seedtrack/internal/device/remote"
	"github.com/avolkov/seedtrack/internal/device/services"
	"github.com/avolkov/seedtrack/internal/device/store"
	"github.com/avolkov/seedtrack/internal/device/sync"
	"github.com/avolkov/seedtrack/internal/logging"
)

type App struct {
	config     *config.Config
	store      *store.Store
	session    *services.SessionService
	treatments *services.TreatmentService
	engine     *sync.Engine
	remote     *remote.HTTPClient
	userName   string
	reader     *bufio.Reader
	out        io.Writer
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	logger := logging.NewJSON("device")

	db, err := store.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	st := store.New(db, store.NewSessionKeys(), &store.FileBudget{
		Path:     cfg.DatabasePath,
		MaxBytes: cfg.MaxStorageBytes,
	})

	deviceID, err := identity.LoadOrCreate(ctx, st.Metadata())
	if err != nil {
		return nil, err
	}

	remoteClient := remote.NewHTTPClient(cfg.ServerEndpointAddr, deviceID, cfg.CallTimeout)
	engine := sync.NewEngine(st, remoteClient, deviceID,
		sync.Config{CallTimeout: cfg.CallTimeout}, logger)

	gateway := erp.NewCacheGateway(
		erp.NewHTTPLookupClient(cfg.ERPEndpointAddr, cfg.CallTimeout), logger)

	return &App{
		config:     cfg,
		store:      st,
		session:    services.NewSessionService(st, logger),
		treatments: services.NewTreatmentService(st, engine, gateway, logger),
		engine:     engine,
		remote:     remoteClient,
		reader:     bufio.NewReader(os.Stdin),
		out:        os.Stdout,
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.store.IsEncryptionReady()
}

func (a *App) getStatus() string {
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf("(%s) ", a.userName)
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}
