package badger

import (
	"errors"

	"github.com/poiesic/ragline/storage"
)

// Repositories bundles every BadgerDB repository sharing one backend.
type Repositories struct {
	Backend     *Backend
	Documents   storage.DocumentRepository
	Chunks      storage.ChunkRepository
	Jobs        storage.JobRepository
	Checkpoints storage.CheckpointRepository
	Vectors     *VectorStore
}

// OpenRepositories opens a backend at path (or in memory) and creates all
// repositories on it.
func OpenRepositories(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Backend:     backend,
		Documents:   NewDocumentRepository(backend),
		Chunks:      NewChunkRepository(backend),
		Jobs:        NewJobRepository(backend),
		Checkpoints: NewCheckpointRepository(backend),
		Vectors:     NewVectorStore(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	return OpenRepositories("", true)
}

// Close closes every repository and then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Documents.Close(),
		r.Chunks.Close(),
		r.Jobs.Close(),
		r.Backend.Close(),
	)
}
