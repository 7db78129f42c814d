package llm

import "context"

// TextRequest is a single system+user exchange with a text model.
// An empty Model uses the client's configured default.
type TextRequest struct {
	System string
	Prompt string
	Model  string
}

// TextGenerator is the interface for LLM text generation.
type TextGenerator interface {
	// GenerateText returns free-form text.
	GenerateText(ctx context.Context, req TextRequest) (string, error)

	// GenerateStructured asks for output conforming to schema and decodes it
	// into out. Output that is not valid JSON or lacks a required field
	// yields ErrMalformedOutput.
	GenerateStructured(ctx context.Context, req TextRequest, schema Schema, out any) error

	GetModel() string
}

// Image is a synthesized image.
type Image struct {
	Bytes         []byte
	MimeType      string
	RevisedPrompt string
}

// ImageGenerator synthesizes an image from a text prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, model string) (Image, error)
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Returns float32 slice; callers convert to float64 for storage.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
