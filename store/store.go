// Package store opens the configured enrollment.Store backend.
package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/config"
	"github.com/warp/enrollment-engine/enrollment"
	memstore "github.com/warp/enrollment-engine/enrollment/store"
	"github.com/warp/enrollment-engine/store/csvlog"
	"github.com/warp/enrollment-engine/store/sqlite"
)

// Open returns the store selected by cfg and a function releasing it.
func Open(cfg config.StoreConfig, logger *zap.Logger) (enrollment.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.DriverCSV:
		s, err := csvlog.New(cfg.Path, csvlog.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverMemory:
		return memstore.NewMemory(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
