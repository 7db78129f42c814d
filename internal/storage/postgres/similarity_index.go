package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/pkg/types"
)

func (w *worldStore) IndexArticle(ctx context.Context, a *types.Article) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}

	_, err := w.db.ExecContext(ctx, `
		INSERT INTO article_index (article_id, world, title, content, content_tsv, updated_at)
		VALUES ($1, $2, $3, $4, to_tsvector('english', $3::text || ' ' || $4::text), $5)
		ON CONFLICT (article_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			content_tsv = excluded.content_tsv,
			updated_at = excluded.updated_at`,
		a.ID, w.world, a.Title, a.Content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: IndexArticle: %w", err)
	}

	if w.embedder == nil || !w.pgvectorAvailable {
		return nil
	}
	vec, err := w.embedder.Embed(ctx, storage.EmbedText(a.Title, a.Content))
	if err != nil {
		w.log.Warn("postgres: embedding failed, indexing lexically", "title", a.Title, "error", err)
		return nil
	}
	_, err = w.db.ExecContext(ctx,
		`UPDATE article_index SET embedding = $2, model = $3 WHERE article_id = $1`,
		a.ID, pgvector.NewVector(vec), w.embedder.GetModel(),
	)
	if err != nil {
		return fmt.Errorf("postgres: store embedding: %w", err)
	}
	return nil
}

func (w *worldStore) IndexSize(ctx context.Context) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM article_index WHERE world = $1`, w.world).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: IndexSize: %w", err)
	}
	return n, nil
}

// QuerySimilar ranks by cosine distance through pgvector when available and
// falls back to ts_rank over the tsvector column.
func (w *worldStore) QuerySimilar(ctx context.Context, text string, topK int) ([]storage.SimilarDocument, error) {
	if topK <= 0 {
		return []storage.SimilarDocument{}, nil
	}

	if w.embedder != nil && w.pgvectorAvailable {
		vec, err := w.embedder.Embed(ctx, storage.EmbedText("", text))
		if err != nil {
			w.log.Warn("postgres: query embedding failed, using full-text ranking", "error", err)
		} else {
			docs, err := w.query(ctx, `
				SELECT article_id, title, content, 1 - (embedding <=> $2) AS score
				FROM article_index
				WHERE world = $1 AND embedding IS NOT NULL
				ORDER BY embedding <=> $2
				LIMIT $3`, w.world, pgvector.NewVector(vec), topK)
			if err != nil {
				return nil, err
			}
			if len(docs) > 0 {
				return docs, nil
			}
		}
	}

	tsq := toTSQuery(text)
	if tsq == "" {
		return []storage.SimilarDocument{}, nil
	}
	return w.query(ctx, `
		SELECT article_id, title, content, ts_rank(content_tsv, q) AS score
		FROM article_index, to_tsquery('english', $2) q
		WHERE world = $1 AND content_tsv @@ q
		ORDER BY score DESC
		LIMIT $3`, w.world, tsq, topK)
}

func (w *worldStore) query(ctx context.Context, q string, args ...any) ([]storage.SimilarDocument, error) {
	rows, err := w.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: QuerySimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []storage.SimilarDocument{}
	for rows.Next() {
		var d storage.SimilarDocument
		if err := rows.Scan(&d.ArticleID, &d.Title, &d.Content, &d.Score); err != nil {
			return nil, fmt.Errorf("postgres: QuerySimilar scan: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// toTSQuery OR's the alphanumeric words of text with prefix matching. Only
// letters and digits survive, so the result is always valid tsquery syntax.
func toTSQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w+":*")
	}
	return strings.Join(terms, " | ")
}

