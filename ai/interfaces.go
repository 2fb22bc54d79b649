package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by embedders that encode search queries
// differently from stored passages.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces free text from a prompt.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate sends prompt to the model and returns the generated text.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the model identifier used for generation.
	ModelName() string
}
