// Package postgres implements the storage interfaces on PostgreSQL. One
// database holds every world; rows are keyed by world name.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationPgvector adds the vector column. It is only applied when the
// vector extension could be created.
const migrationPgvector = `ALTER TABLE article_index ADD COLUMN IF NOT EXISTS embedding vector`

// Store is a shared PostgreSQL connection pool. World returns per-world
// views; closing a view does not close the pool.
type Store struct {
	db                *sql.DB
	embedder          storage.Embedder
	pgvectorAvailable bool
	log               *logger.Logger
}

// Open connects to dsn, applies migrations and probes for pgvector.
// Without pgvector the similarity index is lexical only.
func Open(ctx context.Context, dsn string, embedder storage.Embedder, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mgr, err := storage.NewMigrationManager(ctx, db, files, storage.PlaceholderDollar)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := mgr.Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	s := &Store{db: db, embedder: embedder, log: log}
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Warn("postgres: pgvector extension not available, vector similarity disabled", "error", err)
	} else if _, err := db.ExecContext(ctx, migrationPgvector); err != nil {
		log.Warn("postgres: failed to add embedding column, vector similarity disabled", "error", err)
	} else {
		s.pgvectorAvailable = true
	}
	return s, nil
}

// World returns the storage view of one world.
func (s *Store) World(name string) storage.WorldStore {
	return &worldStore{Store: s, world: name}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// worldStore implements storage.WorldStore for one world on the shared pool.
type worldStore struct {
	*Store
	world string
}

var _ storage.WorldStore = (*worldStore)(nil)

// Close is a no-op; the pool is owned by Store.
func (w *worldStore) Close() error {
	return nil
}

// isUniqueViolation reports whether err is a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
