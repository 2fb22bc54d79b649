package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrSummarizerRequired is returned when a summarizer is not provided.
	ErrSummarizerRequired = errors.New("summarizer required")

	// ErrEmbedderRequired is returned when the indexer has no embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrVectorIndexRequired is returned when the indexer has no vector index.
	ErrVectorIndexRequired = errors.New("vector index required")
)
