// Package store opens the persistence backend named in the configuration.
package store

import (
	"context"
	"fmt"

	"library-ledger/config"
	"library-ledger/library"
	"library-ledger/logger"
	"library-ledger/postgres"
)

// Open returns the SQLite or PostgreSQL gateway selected by cfg.Driver. The
// PostgreSQL schema is applied before Open returns; SQLite migrates itself.
func Open(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (library.Gateway, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		gw, err := postgres.Open(ctx, cfg.DSN, cfg.PGClient, postgres.WithLogger(log.WithField("component", "postgres")))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Debug("store opened", "driver", cfg.Driver, "client", cfg.PGClient)
		return gw, nil

	case config.DriverSQLite, "":
		db, err := library.NewDatabase(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Debug("store opened", "driver", config.DriverSQLite, "path", cfg.Path)
		return db, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
