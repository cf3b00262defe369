// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics and writes every committed change through to disk.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"dbtlineage/internal/infra/persistence/memory"
	"dbtlineage/internal/infra/persistence/relational"
	"dbtlineage/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "dbtlineage.db"

// Store persists designs, builds and tests to SQLite tables while reusing the
// in-memory store for transactions and lookups.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and hydrates the store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if err := relational.Migrate(ctx, db, relational.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := relational.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db, path: path}, nil
}

// RunInTransaction applies fn in memory and writes the touched rows to SQLite
// before the new state is published. Readers never observe a transaction whose
// write failed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	_, res, err := s.ApplyWith(ctx, fn, func(ctx context.Context, changes []domain.Change) error {
		if err := relational.Write(ctx, s.db, relational.SQLite, changes); err != nil {
			return fmt.Errorf("%w: sqlite: %w", domain.ErrStorage, err)
		}
		return nil
	})
	return res, err
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
