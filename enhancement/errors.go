package enhancement

import "errors"

var (
	// ErrNothingToEnhance is returned by Submit when the namespace has no
	// chunks with a basic summary.
	ErrNothingToEnhance = errors.New("nothing to enhance: no chunks with basic summaries")

	// ErrNoOutputFile is returned when a completed batch has no result artifact.
	ErrNoOutputFile = errors.New("completed batch has no output file")

	// ErrMalformedResult marks a result line that could not be used.
	ErrMalformedResult = errors.New("malformed batch result")
)
