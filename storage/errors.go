package storage

import "errors"

var (
	// ErrNotFound is returned when a document, chunk, job or checkpoint does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when adding a record whose id is already stored.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidQuery is returned for scans with invalid bounds.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps JSON encode and decode failures.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData is returned when a stored value is empty.
	ErrTruncatedData = errors.New("truncated data")
)
