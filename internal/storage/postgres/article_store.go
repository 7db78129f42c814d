package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/pkg/types"
)

const articleColumns = `id, world, title, summary, content, image_ref, image_caption,
	chronology_display, related_entities, created_at, updated_at`

func (w *worldStore) GetArticle(ctx context.Context, title string) (*types.Article, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", storage.ErrInvalidInput)
	}
	row := w.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE world = $1 AND title = $2`, w.world, title)
	return scanArticle(row)
}

func (w *worldStore) GetArticleByID(ctx context.Context, id string) (*types.Article, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}
	row := w.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE world = $1 AND id = $2`, w.world, id)
	return scanArticle(row)
}

func (w *worldStore) ListArticles(ctx context.Context) ([]storage.ArticleListItem, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, title, summary, image_ref FROM articles WHERE world = $1 ORDER BY title`, w.world)
	if err != nil {
		return nil, fmt.Errorf("postgres: ListArticles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []storage.ArticleListItem{}
	for rows.Next() {
		var item storage.ArticleListItem
		var imageRef string
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &imageRef); err != nil {
			return nil, fmt.Errorf("postgres: ListArticles scan: %w", err)
		}
		item.HasImage = imageRef != ""
		items = append(items, item)
	}
	return items, rows.Err()
}

func (w *worldStore) ListTitles(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT title FROM articles WHERE world = $1 ORDER BY title`, w.world)
	if err != nil {
		return nil, fmt.Errorf("postgres: ListTitles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	titles := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: ListTitles scan: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (w *worldStore) InsertArticle(ctx context.Context, a *types.Article) error {
	if a == nil || a.ID == "" || a.Title == "" {
		return fmt.Errorf("%w: article ID and title are required", storage.ErrInvalidInput)
	}
	if a.Content == "" {
		return fmt.Errorf("%w: article content is required", storage.ErrInvalidInput)
	}

	related := a.RelatedEntities
	if related == nil {
		related = []types.RelatedEntity{}
	}
	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("failed to marshal related entities: %w", err)
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.World = w.world

	_, err = w.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)`,
		a.ID, a.World, a.Title, a.Summary, a.Content, a.ImageRef, a.ImageCaption,
		a.ChronologyDisplay, string(relatedJSON), a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: article %q", storage.ErrAlreadyExists, a.Title)
	}
	if err != nil {
		return fmt.Errorf("postgres: InsertArticle: %w", err)
	}
	return nil
}

func (w *worldStore) UpdateArticle(ctx context.Context, id string, update types.ArticleUpdate) (*types.Article, error) {
	row := w.db.QueryRowContext(ctx, `
		UPDATE articles SET
			summary       = COALESCE($3, summary),
			content       = COALESCE($4, content),
			image_ref     = COALESCE($5, image_ref),
			image_caption = COALESCE($6, image_caption),
			updated_at    = $7
		WHERE world = $1 AND id = $2
		RETURNING `+articleColumns,
		w.world, id,
		nullable(update.Summary), nullable(update.Content),
		nullable(update.ImageRef), nullable(update.ImageCaption),
		time.Now().UTC(),
	)
	return scanArticle(row)
}

func (w *worldStore) SetImage(ctx context.Context, id, ref, caption string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE articles SET image_ref = $3, image_caption = $4, updated_at = $5 WHERE world = $1 AND id = $2`,
		w.world, id, ref, caption, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: SetImage: %w", err)
	}
	return requireAffected(res)
}

func (w *worldStore) DeleteArticle(ctx context.Context, id string) error {
	res, err := w.db.ExecContext(ctx, `DELETE FROM articles WHERE world = $1 AND id = $2`, w.world, id)
	if err != nil {
		return fmt.Errorf("postgres: DeleteArticle: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanArticle(row *sql.Row) (*types.Article, error) {
	var a types.Article
	var related []byte
	err := row.Scan(&a.ID, &a.World, &a.Title, &a.Summary, &a.Content, &a.ImageRef, &a.ImageCaption,
		&a.ChronologyDisplay, &related, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan article: %w", err)
	}
	if len(related) > 0 {
		if err := json.Unmarshal(related, &a.RelatedEntities); err != nil {
			return nil, fmt.Errorf("postgres: decode related entities: %w", err)
		}
	}
	return &a, nil
}
