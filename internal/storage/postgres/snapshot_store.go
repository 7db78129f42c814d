package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/lorewiki/internal/storage"
)

func (w *worldStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := w.db.QueryRowContext(ctx, `SELECT data FROM graph_snapshots WHERE world = $1`, w.world).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: LoadSnapshot: %w", err)
	}
	return data, nil
}

func (w *worldStore) SaveSnapshot(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: snapshot is empty", storage.ErrInvalidInput)
	}
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO graph_snapshots (world, data, updated_at) VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (world) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		w.world, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: SaveSnapshot: %w", err)
	}
	return nil
}
