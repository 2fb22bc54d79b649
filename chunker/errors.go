package chunker

import "errors"

var (
	// ErrInvalidConfiguration is returned when chunking parameters cannot
	// produce a valid split, such as an overlap not smaller than its window.
	ErrInvalidConfiguration = errors.New("invalid chunking configuration")

	// ErrUnknownMethod is returned for method names outside the known set.
	ErrUnknownMethod = errors.New("unknown chunking method")

	// ErrNoEmbedder is returned by the semantic strategy when no embedder
	// was configured.
	ErrNoEmbedder = errors.New("semantic chunking requires an embedder")
)
