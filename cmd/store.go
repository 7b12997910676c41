package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratemap/internal/catalog"
	"github.com/sells-group/ratemap/internal/db"
)

// openStore opens the configured catalog backend.
func openStore(ctx context.Context) (catalog.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "ratemap.db"
		}
		return catalog.NewSQLite(path)
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return catalog.NewPostgres(pool), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
