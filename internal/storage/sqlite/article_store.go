package sqlite

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

// GetArticle retrieves an article by exact title.
func (s *Store) GetArticle(ctx context.Context, title string) (*types.Article, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE title = ?`, title)
	return scanArticle(row)
}

// GetArticleByID retrieves an article by ID.
func (s *Store) GetArticleByID(ctx context.Context, id string) (*types.Article, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	return scanArticle(row)
}

// ListArticles returns all articles ordered by title.
func (s *Store) ListArticles(ctx context.Context) ([]storage.ArticleListItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, summary, image_ref FROM articles ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListArticles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []storage.ArticleListItem{}
	for rows.Next() {
		var item storage.ArticleListItem
		var imageRef string
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &imageRef); err != nil {
			return nil, fmt.Errorf("sqlite: ListArticles scan: %w", err)
		}
		item.HasImage = imageRef != ""
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListTitles returns every canonical title.
func (s *Store) ListTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM articles ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListTitles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	titles := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("sqlite: ListTitles scan: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// InsertArticle stores a new article.
func (s *Store) InsertArticle(ctx context.Context, a *types.Article) error {
	if a == nil || a.ID == "" || a.Title == "" {
		return fmt.Errorf("%w: article ID and title are required", storage.ErrInvalidInput)
	}
	if a.Content == "" {
		return fmt.Errorf("%w: article content is required", storage.ErrInvalidInput)
	}

	related, err := json.Marshal(relatedOrEmpty(a.RelatedEntities))
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
	if a.World == "" {
		a.World = s.world
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.World, a.Title, a.Summary, a.Content, a.ImageRef, a.ImageCaption,
		a.ChronologyDisplay, string(related), a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: article %q", storage.ErrAlreadyExists, a.Title)
	}
	if err != nil {
		return fmt.Errorf("sqlite: InsertArticle: %w", err)
	}
	return nil
}

// UpdateArticle applies the non-nil fields of update.
func (s *Store) UpdateArticle(ctx context.Context, id string, update types.ArticleUpdate) (*types.Article, error) {
	a, err := s.GetArticleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Summary != nil {
		a.Summary = *update.Summary
	}
	if update.Content != nil {
		a.Content = *update.Content
	}
	if update.ImageRef != nil {
		a.ImageRef = *update.ImageRef
	}
	if update.ImageCaption != nil {
		a.ImageCaption = *update.ImageCaption
	}
	a.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET summary = ?, content = ?, image_ref = ?, image_caption = ?, updated_at = ?
		WHERE id = ?`,
		a.Summary, a.Content, a.ImageRef, a.ImageCaption, a.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: UpdateArticle: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return a, nil
}

// SetImage attaches an image reference and caption.
func (s *Store) SetImage(ctx context.Context, id, ref, caption string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET image_ref = ?, image_caption = ?, updated_at = ? WHERE id = ?`,
		ref, caption, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: SetImage: %w", err)
	}
	return requireAffected(res)
}

// DeleteArticle removes an article; its index entry goes with it via the
// foreign key cascade.
func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteArticle: %w", err)
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

func relatedOrEmpty(r []types.RelatedEntity) []types.RelatedEntity {
	if r == nil {
		return []types.RelatedEntity{}
	}
	return r
}

func scanArticle(row *sql.Row) (*types.Article, error) {
	var a types.Article
	var related string
	err := row.Scan(&a.ID, &a.World, &a.Title, &a.Summary, &a.Content, &a.ImageRef, &a.ImageCaption,
		&a.ChronologyDisplay, &related, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan article: %w", err)
	}
	if related != "" {
		if err := json.Unmarshal([]byte(related), &a.RelatedEntities); err != nil {
			return nil, fmt.Errorf("sqlite: decode related entities: %w", err)
		}
	}
	return &a, nil
}
