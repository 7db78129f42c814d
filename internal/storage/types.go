package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a uniqueness conflict, e.g. a second article
	// with the same canonical title in one world.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// SimilarDocument is one hit from a SimilarityIndex query. Higher Score is
// more similar; scores are only comparable within one result set.
type SimilarDocument struct {
	ArticleID string  `json:"article_id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Embedder produces vector embeddings for the similarity index. It is
// satisfied by llm.EmbeddingGenerator.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// ArticleListItem is the lightweight row returned by article listings.
type ArticleListItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	HasImage bool   `json:"has_image"`
}
