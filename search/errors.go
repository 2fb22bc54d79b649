package search

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when a query embedder is not provided.
	ErrEmbedderRequired = errors.New("query embedder required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("empty query")
)
