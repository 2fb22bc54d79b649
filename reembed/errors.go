package reembed

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when no chunk repository is supplied.
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")

	// ErrIndexerRequired is returned when no indexer is supplied.
	ErrIndexerRequired = errors.New("indexer is required")

	// ErrUnknownMode is returned for selection modes other than stale and all.
	ErrUnknownMode = errors.New("unknown reembed mode")
)
