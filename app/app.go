// Package app wires configuration into a ready ledger, catalog and validator.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/catalog"
	"github.com/warp/enrollment-engine/config"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/identity"
	"github.com/warp/enrollment-engine/store"
)

// App holds the collaborators shared by the console and the HTTP server.
type App struct {
	Ledger    *enrollment.Ledger
	Catalog   enrollment.Catalog
	Validator *identity.Validator
	Logger    *zap.Logger

	closeStore func() error
}

// New opens the store and loads the catalog described by cfg.
// observer may be nil.
func New(cfg *config.Config, logger *zap.Logger, observer enrollment.Observer) (*App, error) {
	factory := catalog.NewFactory()
	var (
		cat *enrollment.StaticCatalog
		err error
	)
	if cfg.CatalogPath != "" {
		cat, err = factory.Load(cfg.CatalogPath)
	} else {
		cat, err = factory.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	st, closeStore, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	ledger := enrollment.NewLedger(st,
		enrollment.WithLogger(logger),
		enrollment.WithObserver(observer),
	)

	logger.Info("enrollment engine ready",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("store_path", cfg.Store.Path),
		zap.Int("offerings", len(cat.Offerings())))

	return &App{
		Ledger:     ledger,
		Catalog:    cat,
		Validator:  identity.New(identity.ParseScript(cfg.NameScript)),
		Logger:     logger,
		closeStore: closeStore,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.closeStore()
}
