package reembed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/storage"
)

// Mode selects which chunks a pass re-embeds.
type Mode string

const (
	// ModeStale re-embeds chunks whose vector predates their enhanced
	// summary or was produced by another model.
	ModeStale Mode = "stale"
	// ModeAll re-embeds every embedded chunk.
	ModeAll Mode = "all"
)

// ParseMode maps a user-facing name to a Mode. The empty string is ModeStale.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStale:
		return ModeStale, nil
	case ModeAll:
		return ModeAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ChunkIndexer re-indexes explicit chunks. ingestion.Indexer implements it.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, namespace core.Namespace, chunks []*core.Chunk) (*ingestion.IndexReport, error)
	RemoveVectors(ctx context.Context, namespace core.Namespace, index string, ids []string) error
	Model() ai.Model
}

// BatchResult counts what happened to one page of chunks.
type BatchResult struct {
	Selected   int
	Reembedded int
	Failed     int
}

// BatchProcessor re-embeds the selected chunks of one page.
type BatchProcessor struct {
	repo    storage.ChunkRepository
	indexer ChunkIndexer
	mode    Mode
	logger  *slog.Logger
}

// NewBatchProcessor creates a processor selecting chunks by mode.
func NewBatchProcessor(repo storage.ChunkRepository, indexer ChunkIndexer, mode Mode, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		repo:    repo,
		indexer: indexer,
		mode:    mode,
		logger:  logger,
	}
}

// Selects reports whether c should be re-embedded.
func (p *BatchProcessor) Selects(c *core.Chunk) bool {
	if !c.Embedded() {
		// Unembedded chunks belong to the regular index pass.
		return false
	}
	if p.mode == ModeAll {
		return true
	}
	return c.StaleVector(p.indexer.Model().Name)
}

// Process clears the vector reference of every selected chunk in batch and
// re-indexes them. A chunk whose re-index fails stays unembedded, so the
// next index pass retries it. Once a chunk is written to a different index
// than before, its old vector is deleted.
func (p *BatchProcessor) Process(ctx context.Context, namespace core.Namespace, batch []*core.Chunk) (BatchResult, error) {
	var result BatchResult

	selected := make([]*core.Chunk, 0, len(batch))
	ids := make([]string, 0, len(batch))
	for _, c := range batch {
		if c.Namespace != namespace || !p.Selects(c) {
			continue
		}
		selected = append(selected, c)
		ids = append(ids, c.ID)
	}
	result.Selected = len(selected)
	if len(selected) == 0 {
		return result, nil
	}

	previous := make(map[string]string, len(selected))
	for _, c := range selected {
		previous[c.ID] = c.VectorRef.Index
	}

	if _, err := p.repo.ClearEmbedded(ctx, ids...); err != nil {
		return result, fmt.Errorf("clearing vector references: %w", err)
	}
	for _, c := range selected {
		c.VectorRef = nil
	}

	report, err := p.indexer.IndexChunks(ctx, namespace, selected)
	if report != nil {
		result.Reembedded = report.Embedded
		result.Failed = report.Failed
	}
	if err != nil {
		return result, fmt.Errorf("re-indexing chunks: %w", err)
	}
	if result.Failed > 0 {
		p.logger.Warn("chunks left unembedded", "namespace", namespace, "failed", result.Failed)
	}
	p.removeMoved(ctx, namespace, ids, previous)
	return result, nil
}

// removeMoved deletes the old vectors of chunks now embedded in another
// index. Failures are logged; search ignores vectors without a matching
// reference.
func (p *BatchProcessor) removeMoved(ctx context.Context, namespace core.Namespace, ids []string, previous map[string]string) {
	current, err := p.repo.GetChunks(ctx, ids...)
	if err != nil {
		p.logger.Warn("loading re-embedded chunks", "namespace", namespace, "err", err)
		return
	}
	moved := make(map[string][]string)
	for _, c := range current {
		old := previous[c.ID]
		if c.VectorRef == nil || old == "" || c.VectorRef.Index == old {
			continue
		}
		moved[old] = append(moved[old], c.ID)
	}
	for index, stale := range moved {
		if err := p.indexer.RemoveVectors(ctx, namespace, index, stale); err != nil {
			p.logger.Warn("old vectors not removed", "namespace", namespace, "index", index, "count", len(stale), "err", err)
		}
	}
}
