package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/lorewiki/internal/storage"
)

// LoadSnapshot returns the stored graph snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM graph_snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: LoadSnapshot: %w", err)
	}
	return data, nil
}

// SaveSnapshot replaces the stored graph snapshot in a single statement.
func (s *Store) SaveSnapshot(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: snapshot is empty", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_snapshot (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: SaveSnapshot: %w", err)
	}
	return nil
}
