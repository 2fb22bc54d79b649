package embedding

import "errors"

var (
	// ErrUnknownModel is returned for model identifiers missing from the model table.
	ErrUnknownModel = errors.New("unknown embedding model")

	// ErrNoModelAvailable is returned when neither the requested model nor any
	// model of the fallback chain passes its connectivity check.
	ErrNoModelAvailable = errors.New("no embedding model available")

	// ErrVectorCount is returned when a provider answers with a different
	// number of vectors than texts sent.
	ErrVectorCount = errors.New("embedding count mismatch")

	// ErrDimension is returned when a provider answers with vectors of an
	// unexpected size.
	ErrDimension = errors.New("embedding dimension mismatch")
)
