package core

import (
	"context"
	"fmt"

	"tapeview/internal/config"
	"tapeview/internal/infra/persistence/memory"
	"tapeview/internal/infra/persistence/postgres"
	"tapeview/internal/infra/persistence/sqlite"
	"tapeview/pkg/domain"
)

// StorageDriver identifies a concrete record store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / demos)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenRecordStore selects a record store backend. An empty driver means sqlite.
func OpenRecordStore(ctx context.Context, cfg config.Storage) (domain.RecordStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
