package core

import (
	"context"
	"fmt"

	"dbtlineage/internal/config"
	"dbtlineage/internal/infra/lock"
	"dbtlineage/internal/infra/persistence/memory"
	"dbtlineage/internal/infra/persistence/postgres"
	"dbtlineage/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// LockDriver identifies a KeyedLocker implementation.
type LockDriver string

const (
	LockLocal LockDriver = "local"
	LockRedis LockDriver = "redis"
)

// OpenPersistentStore selects a backend from the storage configuration.
// An empty driver defaults to sqlite.
func OpenPersistentStore(cfg config.Storage, engine *RulesEngine) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenLocker selects the locker EnsureDesign serializes through. An empty
// driver defaults to the in-process locker.
func OpenLocker(ctx context.Context, cfg config.Lock) (lock.KeyedLocker, error) {
	switch LockDriver(cfg.Driver) {
	case "", LockLocal:
		return lock.NewLocal(), nil
	case LockRedis:
		locker, err := lock.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown lock driver %s", cfg.Driver)
	}
}
