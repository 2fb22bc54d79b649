package storage

import (
	"context"

	"github.com/poiesic/ragline/core"
)

// TransactionManager runs a function inside a storage transaction.
type TransactionManager interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DocumentRepository stores uploaded documents.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// AddDocument stores a new document and sets its timestamps.
	// Generates an ID when doc.ID is empty.
	// Returns ErrDuplicateKey when the owner already has a document with the
	// same content hash.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument replaces an existing document and bumps UpdatedAt.
	// ContentHash and OwnerID are immutable.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// FindDocumentByHash returns the owner's document with the given content hash.
	// Returns ErrNotFound if there is none.
	FindDocumentByHash(ctx context.Context, ownerID, contentHash string) (*core.Document, error)

	// ListDocuments returns the owner's documents ordered by creation time.
	ListDocuments(ctx context.Context, ownerID string) ([]*core.Document, error)

	// DeleteDocument removes a document and its indices.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error

	Close() error
}

// ChunkRepository stores document chunks.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// AddChunks stores new chunks and sets their timestamps.
	// Generates IDs for chunks without one.
	// Returns ErrDuplicateKey if a (DocumentID, Index) pair is already taken;
	// in that case nothing is written.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// UpdateChunks replaces existing chunks and bumps UpdatedAt.
	// Returns ErrNotFound if any chunk doesn't exist; nothing is written then.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id string) (*core.Chunk, error)

	// GetChunks retrieves multiple chunks by their IDs.
	// Returns only the chunks that exist (no error for missing chunks).
	GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error)

	// GetChunksByDocument returns a document's chunks ordered by Index.
	GetChunksByDocument(ctx context.Context, documentID string) ([]*core.Chunk, error)

	// DeleteChunksByDocument removes all chunks of a document.
	// Returns the ids that were removed.
	DeleteChunksByDocument(ctx context.Context, documentID string) ([]string, error)

	// GetUnembeddedChunks returns up to limit chunks of namespace that have
	// no vector reference. A limit <= 0 means no limit.
	GetUnembeddedChunks(ctx context.Context, namespace core.Namespace, limit int) ([]*core.Chunk, error)

	// GetChunksBySummaryType returns up to limit chunks of namespace whose
	// summary has the given type. A limit <= 0 means no limit.
	GetChunksBySummaryType(ctx context.Context, namespace core.Namespace, summaryType core.SummaryType, limit int) ([]*core.Chunk, error)

	// ScanChunks returns up to limit chunks of namespace with IDs greater
	// than afterID, ordered by ID. Used for resumable full passes.
	ScanChunks(ctx context.Context, namespace core.Namespace, afterID string, limit int) ([]*core.Chunk, error)

	// MarkEmbedded sets the vector reference on each chunk in refs.
	// Chunks that no longer exist are skipped. Returns the number marked.
	MarkEmbedded(ctx context.Context, refs map[string]core.VectorRef) (int, error)

	// ClearEmbedded removes the vector reference from the given chunks so
	// the index stage picks them up again. Missing chunks are skipped.
	ClearEmbedded(ctx context.Context, ids ...string) (int, error)

	// PatchChunks applies patch to the stored copy of each listed chunk
	// inside the write transaction, so fields patch leaves alone keep any
	// value written concurrently. patch may run more than once per chunk
	// when a transaction is retried. Missing chunks are skipped. Returns
	// the number patched.
	PatchChunks(ctx context.Context, ids []string, patch func(*core.Chunk)) (int, error)

	Close() error
}

// JobRepository stores enhancement jobs.
// Implementations must be thread-safe and support concurrent access.
type JobRepository interface {
	// AddJob stores a new job and sets its timestamps.
	// Generates an ID when job.ID is empty.
	AddJob(ctx context.Context, job *core.EnhancementJob) (*core.EnhancementJob, error)

	// UpdateJob replaces an existing job and bumps UpdatedAt.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.EnhancementJob) (*core.EnhancementJob, error)

	// GetJob retrieves a job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.EnhancementJob, error)

	// GetJobByRemoteID finds a job by the batch service's identifier.
	// Returns ErrNotFound if there is none.
	GetJobByRemoteID(ctx context.Context, remoteID string) (*core.EnhancementJob, error)

	// ListActiveJobs returns every job that has not reached a terminal status.
	ListActiveJobs(ctx context.Context) ([]*core.EnhancementJob, error)

	// ListJobs returns the owner's jobs ordered by creation time.
	ListJobs(ctx context.Context, ownerID string) ([]*core.EnhancementJob, error)

	Close() error
}

// CheckpointRepository persists progress of resumable passes.
type CheckpointRepository interface {
	// SaveCheckpoint stores checkpoint under its ProcessorType.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint for processorType, or nil, nil
	// if none exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for processorType.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
