package vectorindex

import "errors"

var (
	// ErrIndexNotFound is returned by stores when the named index does not exist.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrIndexExists is returned by stores when creating an index that
	// already exists. The router treats it as success.
	ErrIndexExists = errors.New("vector index already exists")

	// ErrDimensionMismatch is returned when an existing index or a vector
	// does not match the expected dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidHandle is returned for zero or inconsistent index handles.
	ErrInvalidHandle = errors.New("invalid index handle")
)
