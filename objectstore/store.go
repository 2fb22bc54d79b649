// Package objectstore archives batch artifacts such as enhancement input
// and output files.
package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrInvalidKey is returned for keys that escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrNotFound is returned when a key has no object.
	ErrNotFound = errors.New("object not found")
)

// Store saves and retrieves binary objects by key.
type Store interface {
	// Put writes r under key, replacing any existing object, and returns
	// the number of bytes written.
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)

	// Open returns a reader for the object at key.
	// Returns ErrNotFound if there is none.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CleanKey normalizes key to a relative slash separated path and rejects
// keys that are empty or escape the root.
func CleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return clean, nil
}

// JobArtifactKey is the key of an enhancement job artifact, e.g. input.jsonl.
func JobArtifactKey(jobID, name string) string {
	return path.Join("enhancement", jobID, name)
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
