// Package storage provides composable storage interfaces for lorewiki.
//
// A world's persistent state lives in three stores that must agree: the
// ArticleStore (canonical records), the GraphSnapshotStore (the serialized
// knowledge graph) and the SimilarityIndex (retrieval over article text).
// Backends implement all three behind WorldStore.
package storage

import (
	"context"

	"github.com/scrypster/lorewiki/pkg/types"
)

// ArticleStore persists canonical articles. Titles are unique per world and
// compared exactly (case-sensitive).
type ArticleStore interface {
	// GetArticle retrieves an article by exact title.
	// Returns ErrNotFound if no such article exists.
	GetArticle(ctx context.Context, title string) (*types.Article, error)

	// GetArticleByID retrieves an article by ID.
	// Returns ErrNotFound if no such article exists.
	GetArticleByID(ctx context.Context, id string) (*types.Article, error)

	// ListArticles returns all articles ordered by title.
	ListArticles(ctx context.Context) ([]ArticleListItem, error)

	// ListTitles returns every canonical title.
	ListTitles(ctx context.Context) ([]string, error)

	// InsertArticle stores a new article. Returns ErrAlreadyExists when an
	// article with the same title already exists.
	InsertArticle(ctx context.Context, article *types.Article) error

	// UpdateArticle applies the non-nil fields of update and returns the
	// stored result. Returns ErrNotFound if the article doesn't exist.
	UpdateArticle(ctx context.Context, id string, update types.ArticleUpdate) (*types.Article, error)

	// SetImage attaches an image reference and caption.
	// Returns ErrNotFound if the article was removed in the meantime.
	SetImage(ctx context.Context, id, ref, caption string) error

	// DeleteArticle removes an article and its index entry.
	// Returns ErrNotFound if the article doesn't exist.
	DeleteArticle(ctx context.Context, id string) error
}

// GraphSnapshotStore persists the serialized knowledge graph of one world.
type GraphSnapshotStore interface {
	// LoadSnapshot returns the last saved snapshot.
	// Returns ErrNotFound if the world has never saved one.
	LoadSnapshot(ctx context.Context) ([]byte, error)

	// SaveSnapshot atomically replaces the stored snapshot.
	SaveSnapshot(ctx context.Context, data []byte) error
}

// SimilarityIndex answers "which existing articles resemble this text".
type SimilarityIndex interface {
	// IndexArticle adds or replaces the index entry of an article.
	IndexArticle(ctx context.Context, article *types.Article) error

	// QuerySimilar returns up to topK documents ordered by decreasing
	// similarity. An empty index yields an empty slice, not an error.
	QuerySimilar(ctx context.Context, text string, topK int) ([]SimilarDocument, error)

	// IndexSize returns the number of indexed documents.
	IndexSize(ctx context.Context) (int, error)
}

// WorldStore bundles the stores of one world.
type WorldStore interface {
	ArticleStore
	GraphSnapshotStore
	SimilarityIndex

	// Close releases resources held by this handle.
	Close() error
}
