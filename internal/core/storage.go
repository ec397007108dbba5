package core

import (
	"context"
	"fmt"

	"estatehub/internal/config"
	"estatehub/internal/infra/persistence/memory"
	"estatehub/internal/infra/persistence/postgres"
	"estatehub/internal/infra/persistence/sqlite"
	"estatehub/pkg/domain"
)

// StorageDriver identifies a concrete target store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = config.StorageMemory   // in-memory only (tests / dry runs)
	StorageSQLite   StorageDriver = config.StorageSQLite   // embedded sqlite file
	StoragePostgres StorageDriver = config.StoragePostgres // PostgreSQL server
)

// TargetStore is a seedable store that also answers tier lookups.
type TargetStore interface {
	domain.Store
	domain.TierLookup
}

// OpenTargetStore selects a backend from cfg. maxConns bounds the postgres
// pool and is usually the loader concurrency; sqlite always uses one
// connection.
//
//	driver memory: fresh in-process store
//	driver sqlite: file at sqlite_path (default ./estatehub.db)
//	driver postgres: postgres_dsn
func OpenTargetStore(ctx context.Context, cfg config.Storage, maxConns int) (TargetStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, maxConns)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
