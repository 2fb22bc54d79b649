package reembed

import (
	"context"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// ChunkIterator pages through a namespace in chunk ID order.
type ChunkIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

// NewChunkIterator creates an iterator reading batchSize chunks per page.
func NewChunkIterator(repo storage.ChunkRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ChunkIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with successive pages of namespace, starting after
// afterID (empty for the beginning). Iteration stops at the first error
// returned by fn or when the context is cancelled.
func (it *ChunkIterator) ForEach(ctx context.Context, namespace core.Namespace, afterID string, fn func([]*core.Chunk) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.repo.ScanChunks(ctx, namespace, afterID, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		if len(batch) < it.batchSize {
			return nil
		}
		afterID = batch[len(batch)-1].ID
	}
}
