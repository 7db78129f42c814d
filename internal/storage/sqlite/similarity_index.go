package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/pkg/types"
)

// vectorSearchMaxCandidates caps the number of embeddings loaded into memory
// during a vector query. A single world rarely holds more articles than this;
// larger deployments should use the postgres backend with pgvector.
const vectorSearchMaxCandidates = 10_000

// IndexArticle adds or replaces the index entry of an article. When an
// embedder is configured the entry carries a vector; an embedding failure
// leaves a lexical-only entry and is logged.
func (s *Store) IndexArticle(ctx context.Context, a *types.Article) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: article ID is required", storage.ErrInvalidInput)
	}

	var blob any // NULL unless a vector is available
	var dim int
	var model string
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, storage.EmbedText(a.Title, a.Content))
		if err != nil {
			s.log.Warn("sqlite: embedding failed, indexing lexically", "title", a.Title, "error", err)
		} else {
			blob = serializeEmbedding(vec)
			dim = len(vec)
			model = s.embedder.GetModel()
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_index (article_id, title, content, embedding, dimension, model, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		a.ID, a.Title, a.Content, blob, dim, model, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: IndexArticle: %w", err)
	}
	return nil
}

// IndexSize returns the number of indexed documents.
func (s *Store) IndexSize(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM article_index`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: IndexSize: %w", err)
	}
	return n, nil
}

// QuerySimilar ranks indexed articles against text. Vector similarity is
// used when an embedder is configured and vectors exist; otherwise, or when
// embedding the query fails, FTS5 bm25 ranking is used.
func (s *Store) QuerySimilar(ctx context.Context, text string, topK int) ([]storage.SimilarDocument, error) {
	if topK <= 0 {
		return []storage.SimilarDocument{}, nil
	}

	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, storage.EmbedText("", text))
		if err == nil {
			docs, err := s.vectorQuery(ctx, vec, topK)
			if err != nil {
				return nil, err
			}
			if len(docs) > 0 {
				return docs, nil
			}
		} else {
			s.log.Warn("sqlite: query embedding failed, using full-text ranking", "error", err)
		}
	}
	return s.lexicalQuery(ctx, text, topK)
}

func (s *Store) vectorQuery(ctx context.Context, query []float32, topK int) ([]storage.SimilarDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, title, content, embedding, dimension
		FROM article_index
		WHERE embedding IS NOT NULL AND dimension = ?
		ORDER BY updated_at DESC
		LIMIT ?`, len(query), vectorSearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []storage.SimilarDocument{}
	for rows.Next() {
		var d storage.SimilarDocument
		var blob []byte
		var dim int
		if err := rows.Scan(&d.ArticleID, &d.Title, &d.Content, &blob, &dim); err != nil {
			return nil, fmt.Errorf("sqlite: scan embedding: %w", err)
		}
		vec, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		d.Score = cosineSimilarity(query, vec)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate embeddings: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

func (s *Store) lexicalQuery(ctx context.Context, text string, topK int) ([]storage.SimilarDocument, error) {
	match := sanitiseFTSQuery(text)
	if match == "" {
		return []storage.SimilarDocument{}, nil
	}

	// bm25 is negative; more negative is a better match.
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.article_id, i.title, i.content, bm25(article_index_fts)
		FROM article_index_fts
		JOIN article_index i ON i.rowid = article_index_fts.rowid
		WHERE article_index_fts MATCH ?
		ORDER BY bm25(article_index_fts)
		LIMIT ?`, match, topK)
	if err != nil {
		return nil, fmt.Errorf("sqlite: QuerySimilar MATCH %q: %w", match, err)
	}
	defer func() { _ = rows.Close() }()

	docs := []storage.SimilarDocument{}
	for rows.Next() {
		var d storage.SimilarDocument
		var rank float64
		if err := rows.Scan(&d.ArticleID, &d.Title, &d.Content, &rank); err != nil {
			return nil, fmt.Errorf("sqlite: QuerySimilar scan: %w", err)
		}
		d.Score = -rank
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// stopWords carry no discriminative value for lexical similarity.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true, "or": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "by": true,
	"with": true, "from": true, "as": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "it": true, "its": true, "this": true, "that": true,
	"not": true, "near": true,
}

// sanitiseFTSQuery turns free text into an FTS5 query: each remaining word
// becomes a quoted prefix term and terms are OR'd. Quoting keeps FTS5
// operators and punctuation in user text from being parsed as syntax.
func sanitiseFTSQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " OR ")
}

// serializeEmbedding encodes a vector as little-endian float32 values.
func serializeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian float32 BLOB, validating its
// size against dimension.
func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
