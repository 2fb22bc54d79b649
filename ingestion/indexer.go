package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/vectorindex"
)

const (
	defaultIndexBatchSize = 100
	defaultEmbedRetries   = 3
)

// BatchEmbedder embeds a batch of texts with one model, all or nothing.
// embedding.Router implements it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, model string, maxRetries int) ([][]float32, bool)
}

// VectorIndex resolves and writes to a vector index.
// vectorindex.Router implements it.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, provider ai.Provider, dimension int) (vectorindex.Handle, error)
	Upsert(ctx context.Context, vectors []vectorindex.Vector, namespace core.Namespace, h vectorindex.Handle) ([]string, error)
	Delete(ctx context.Context, h vectorindex.Handle, namespace core.Namespace, ids []string) error
}

// IndexReport describes one indexing pass over a namespace.
type IndexReport struct {
	Namespace core.Namespace
	Index     string
	Model     string
	// Candidates is the number of unembedded chunks found.
	Candidates int
	// Embedded counts chunks whose vector was confirmed and recorded.
	Embedded int
	// Failed counts chunks left unembedded; they are picked up by the next pass.
	Failed        int
	FailedBatches int
}

// Indexer embeds unembedded chunks and writes them to the vector index.
type Indexer struct {
	chunks     storage.ChunkRepository
	embedder   BatchEmbedder
	index      VectorIndex
	model      ai.Model
	batchSize  int
	maxRetries int
	logger     *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer) error

// WithIndexBatchSize sets the number of chunks embedded per request.
// Default: 100.
func WithIndexBatchSize(n int) IndexerOption {
	return func(ix *Indexer) error {
		if n < 1 {
			return fmt.Errorf("index batch size must be positive, got %d", n)
		}
		ix.batchSize = n
		return nil
	}
}

// WithEmbedRetries sets the attempts per embedding batch. Default: 3.
func WithEmbedRetries(n int) IndexerOption {
	return func(ix *Indexer) error {
		if n < 1 {
			return fmt.Errorf("embed retries must be positive, got %d", n)
		}
		ix.maxRetries = n
		return nil
	}
}

// WithIndexerLogger sets the logger.
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) error {
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates an Indexer that embeds with model. The model is the
// one resolved by the embedding router's Initialize; the indexer never
// switches models.
func NewIndexer(chunks storage.ChunkRepository, embedder BatchEmbedder, index VectorIndex, model ai.Model, opts ...IndexerOption) (*Indexer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if model.Name == "" || model.Dimension <= 0 || !model.Provider.Valid() {
		return nil, fmt.Errorf("invalid embedding model %+v", model)
	}
	ix := &Indexer{
		chunks:     chunks,
		embedder:   embedder,
		index:      index,
		model:      model,
		batchSize:  defaultIndexBatchSize,
		maxRetries: defaultEmbedRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("processor", "index", "model", model.Name)
	return ix, nil
}

// Model returns the embedding model used by the indexer.
func (ix *Indexer) Model() ai.Model {
	return ix.model
}

// Index embeds every unembedded chunk of namespace. A failed batch leaves
// its chunks unembedded and does not stop the pass. Only a missing index
// or a storage failure is returned as an error.
func (ix *Indexer) Index(ctx context.Context, namespace core.Namespace) (*IndexReport, error) {
	if namespace == "" {
		return nil, core.ErrInvalidNamespace
	}
	// Candidates are read once so a failing batch is not retried forever.
	pending, err := ix.chunks.GetUnembeddedChunks(ctx, namespace, 0)
	if err != nil {
		return nil, fmt.Errorf("loading unembedded chunks: %w", err)
	}
	return ix.IndexChunks(ctx, namespace, pending)
}

// IndexChunks embeds and upserts the given chunks of namespace, whatever
// their current vector state. Chunks from other namespaces are skipped.
func (ix *Indexer) IndexChunks(ctx context.Context, namespace core.Namespace, chunks []*core.Chunk) (*IndexReport, error) {
	if namespace == "" {
		return nil, core.ErrInvalidNamespace
	}
	h, err := ix.index.EnsureIndex(ctx, ix.model.Provider, ix.model.Dimension)
	if err != nil {
		return nil, fmt.Errorf("ensuring index: %w", err)
	}

	report := &IndexReport{Namespace: namespace, Index: h.Name, Model: ix.model.Name}
	pending := make([]*core.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Namespace != namespace {
			ix.logger.Warn("skipping chunk from another namespace", "chunk_id", c.ID, "namespace", c.Namespace)
			continue
		}
		pending = append(pending, c)
	}
	report.Candidates = len(pending)
	if len(pending) == 0 {
		return report, nil
	}

	ix.logger.Info("indexing chunks", "namespace", namespace, "index", h.Name, "chunks", len(pending))

	for start := 0; start < len(pending); start += ix.batchSize {
		if err := ctx.Err(); err != nil {
			report.Failed += len(pending) - start
			return report, err
		}
		end := min(start+ix.batchSize, len(pending))
		marked, err := ix.indexBatch(ctx, pending[start:end], namespace, h)
		if errors.Is(err, errBatchFailed) {
			report.FailedBatches++
		} else if err != nil {
			report.Failed += len(pending) - start - marked
			report.Embedded += marked
			return report, err
		}
		report.Embedded += marked
		report.Failed += end - start - marked
	}

	ix.logger.Info("indexing finished",
		"namespace", namespace,
		"embedded", report.Embedded,
		"failed", report.Failed,
		"failed_batches", report.FailedBatches)
	return report, nil
}

// RemoveVectors deletes ids from namespace of the named index. It is used
// to drop vectors left behind in an index the model no longer writes to.
func (ix *Indexer) RemoveVectors(ctx context.Context, namespace core.Namespace, index string, ids []string) error {
	h, err := vectorindex.ParseHandle(index)
	if err != nil {
		return err
	}
	if err := ix.index.Delete(ctx, h, namespace, ids); err != nil {
		return fmt.Errorf("deleting %d vectors from %s: %w", len(ids), index, err)
	}
	ix.logger.Debug("removed vectors", "namespace", namespace, "index", index, "count", len(ids))
	return nil
}

var errBatchFailed = errors.New("batch failed")

// indexBatch embeds and upserts one batch and records vector references
// for the ids the index confirmed. It returns the number of chunks marked.
func (ix *Indexer) indexBatch(ctx context.Context, batch []*core.Chunk, namespace core.Namespace, h vectorindex.Handle) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.EmbeddingText()
	}

	ix.logger.Debug("embedding batch", "chunks", len(texts))
	vectors, ok := ix.embedder.EmbedBatch(ctx, texts, ix.model.Name, ix.maxRetries)
	if !ok {
		ix.logger.Warn("embedding batch failed, leaving chunks unembedded", "chunks", len(batch))
		return 0, errBatchFailed
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("%w: embedding result mismatch, expected %d, received %d", errBatchFailed, len(batch), len(vectors))
	}

	// Vectors pair with chunks by position, never by content.
	payload := make([]vectorindex.Vector, len(batch))
	for i, c := range batch {
		payload[i] = vectorindex.FromChunk(c, vectors[i])
	}

	// An interrupted upsert still reports the ids written before it stopped.
	confirmed, upsertErr := ix.index.Upsert(ctx, payload, namespace, h)
	if upsertErr != nil {
		ix.logger.Warn("upsert interrupted", "chunks", len(batch), "confirmed", len(confirmed), "err", upsertErr)
	}
	if len(confirmed) == 0 {
		if upsertErr != nil {
			return 0, errBatchFailed
		}
		return 0, nil
	}

	now := time.Now().UTC()
	refs := make(map[string]core.VectorRef, len(confirmed))
	for _, id := range confirmed {
		refs[id] = core.VectorRef{Index: h.Name, VectorID: id, Model: ix.model.Name, EmbeddedAt: now}
	}
	marked, err := ix.chunks.MarkEmbedded(context.WithoutCancel(ctx), refs)
	if err != nil {
		return 0, fmt.Errorf("recording vector references: %w", err)
	}
	if upsertErr != nil {
		return marked, errBatchFailed
	}
	return marked, nil
}
