package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// markBatchSize bounds how many chunks one MarkEmbedded or ClearEmbedded
// transaction touches.
const markBatchSize = 500

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) storage.ChunkRepository {
	return &ChunkRepository{backend: backend}
}

// Close releases resources. ChunkRepository has no resources to release.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks stores new chunks in one transaction.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = core.NewID()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		chunk.UpdatedAt = now
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			posKey := makeChunkDocumentKey(chunk.DocumentID, chunk.Index)
			existing, err := getValue(tx, posKey)
			if err != nil {
				return err
			}
			if existing != nil {
				return storage.ErrDuplicateKey
			}
			if err := writeChunk(tx, chunk); err != nil {
				return err
			}
			if err := tx.Set(posKey, []byte(chunk.ID)); err != nil {
				return err
			}
			if err := tx.Set(makeChunkNamespaceKey(chunk.Namespace, chunk.ID), []byte(chunk.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// UpdateChunks replaces existing chunks. Document, position and namespace
// are immutable and are restored from the stored record.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	now := time.Now().UTC()
	err := r.backend.Update(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			old, err := readChunk(tx, makeChunkKey(chunk.ID))
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}
			chunk.DocumentID = old.DocumentID
			chunk.Index = old.Index
			chunk.Namespace = old.Namespace
			chunk.CreatedAt = old.CreatedAt
			chunk.UpdatedAt = now
			if err := writeChunk(tx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunk retrieves a chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id string) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		chunk, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return chunk, err
}

// GetChunks retrieves the chunks that exist among ids, in the order given.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	results := make([]*core.Chunk, 0, len(ids))
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	})
	return results, err
}

// GetChunksByDocument returns a document's chunks ordered by Index.
func (r *ChunkRepository) GetChunksByDocument(ctx context.Context, documentID string) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialChunkDocumentKey(documentID), nil, func(_, val []byte) error {
			chunk, err := readChunk(tx, makeChunkKey(string(val)))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
			return nil
		})
	})
	return results, err
}

// DeleteChunksByDocument removes every chunk of a document with its indices.
func (r *ChunkRepository) DeleteChunksByDocument(ctx context.Context, documentID string) ([]string, error) {
	var deleted []string
	err := r.backend.Update(func(tx *badger.Txn) error {
		deleted = deleted[:0]
		var chunks []*core.Chunk
		err := scanPrefix(tx, makePartialChunkDocumentKey(documentID), nil, func(_, val []byte) error {
			chunk, err := readChunk(tx, makeChunkKey(string(val)))
			if err != nil {
				return err
			}
			if chunk != nil {
				chunks = append(chunks, chunk)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			if err := tx.Delete(makeChunkDocumentKey(chunk.DocumentID, chunk.Index)); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkNamespaceKey(chunk.Namespace, chunk.ID)); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkKey(chunk.ID)); err != nil {
				return err
			}
			deleted = append(deleted, chunk.ID)
		}
		return nil
	})
	return deleted, err
}

// GetUnembeddedChunks scans the namespace index for chunks without a vector reference.
func (r *ChunkRepository) GetUnembeddedChunks(ctx context.Context, ns core.Namespace, limit int) ([]*core.Chunk, error) {
	return r.filterNamespace(ns, limit, func(c *core.Chunk) bool {
		return !c.Embedded()
	})
}

// GetChunksBySummaryType scans the namespace index for chunks with the given summary type.
func (r *ChunkRepository) GetChunksBySummaryType(ctx context.Context, ns core.Namespace, summaryType core.SummaryType, limit int) ([]*core.Chunk, error) {
	return r.filterNamespace(ns, limit, func(c *core.Chunk) bool {
		return c.SummaryType == summaryType
	})
}

// ScanChunks returns chunks of ns with IDs after afterID, in ID order.
func (r *ChunkRepository) ScanChunks(ctx context.Context, ns core.Namespace, afterID string, limit int) ([]*core.Chunk, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", storage.ErrInvalidQuery, limit)
	}
	var results []*core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		var seek []byte
		if afterID != "" {
			// afterID followed by a zero byte is the smallest key past afterID.
			seek = makeChunkNamespaceKey(ns, afterID+keySep)
		}
		return scanPrefix(tx, makePartialChunkNamespaceKey(ns), seek, func(_, val []byte) error {
			chunk, err := readChunk(tx, makeChunkKey(string(val)))
			if err != nil {
				return err
			}
			if chunk == nil {
				return nil
			}
			results = append(results, chunk)
			if limit > 0 && len(results) >= limit {
				return errStopScan
			}
			return nil
		})
	})
	return results, err
}

func (r *ChunkRepository) filterNamespace(ns core.Namespace, limit int, keep func(*core.Chunk) bool) ([]*core.Chunk, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", storage.ErrInvalidQuery, limit)
	}
	var results []*core.Chunk
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialChunkNamespaceKey(ns), nil, func(_, val []byte) error {
			chunk, err := readChunk(tx, makeChunkKey(string(val)))
			if err != nil {
				return err
			}
			if chunk == nil || !keep(chunk) {
				return nil
			}
			results = append(results, chunk)
			if limit > 0 && len(results) >= limit {
				return errStopScan
			}
			return nil
		})
	})
	return results, err
}

// MarkEmbedded sets vector references in batches of markBatchSize.
func (r *ChunkRepository) MarkEmbedded(ctx context.Context, refs map[string]core.VectorRef) (int, error) {
	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return r.modifyChunks(ctx, ids, func(c *core.Chunk) {
		ref := refs[c.ID]
		c.VectorRef = &ref
	})
}

// ClearEmbedded removes vector references in batches of markBatchSize.
func (r *ChunkRepository) ClearEmbedded(ctx context.Context, ids ...string) (int, error) {
	return r.modifyChunks(ctx, ids, func(c *core.Chunk) {
		c.VectorRef = nil
	})
}

// PatchChunks applies patch in batches of markBatchSize.
func (r *ChunkRepository) PatchChunks(ctx context.Context, ids []string, patch func(*core.Chunk)) (int, error) {
	return r.modifyChunks(ctx, ids, patch)
}

func (r *ChunkRepository) modifyChunks(ctx context.Context, ids []string, modify func(*core.Chunk)) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += markBatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch := ids[start:min(start+markBatchSize, len(ids))]
		count := 0
		err := r.backend.Update(func(tx *badger.Txn) error {
			count = 0
			now := time.Now().UTC()
			for _, id := range batch {
				chunk, err := readChunk(tx, makeChunkKey(id))
				if err != nil {
					return err
				}
				if chunk == nil {
					continue
				}
				modify(chunk)
				chunk.UpdatedAt = now
				if err := writeChunk(tx, chunk); err != nil {
					return err
				}
				count++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

func writeChunk(tx *badger.Txn, chunk *core.Chunk) error {
	value, err := storage.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return tx.Set(makeChunkKey(chunk.ID), value)
}

// readChunk returns nil, nil if key doesn't exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalChunk(val)
}
