package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// Config holds configuration for a reembed pass.
type Config struct {
	// BatchSize is the number of chunks scanned per page.
	BatchSize int

	// ReportInterval is how often to report progress, in chunks.
	ReportInterval int

	// Mode selects the chunks to re-embed.
	Mode Mode

	// Restart discards a saved checkpoint and starts from the first chunk.
	Restart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 500,
		Mode:           ModeStale,
	}
}

// Result summarizes a reembed pass.
type Result struct {
	Namespace  core.Namespace
	Scanned    int
	Selected   int
	Reembedded int
	Failed     int
	// Resumed is true when the pass continued from a checkpoint.
	Resumed bool
}

// Reembedder walks a namespace and re-embeds stale chunks.
type Reembedder struct {
	chunks      storage.ChunkRepository
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *ChunkIterator
	logger      *slog.Logger
}

// NewReembedder creates a reembedder. checkpoints may be nil, in which case
// every pass starts from the beginning. progress receives human-readable
// output, typically os.Stderr.
func NewReembedder(chunks storage.ChunkRepository, checkpoints storage.CheckpointRepository, indexer ChunkIndexer, config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	mode, err := ParseMode(string(config.Mode))
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reembedder")

	return &Reembedder{
		chunks:      chunks,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(chunks, indexer, mode, logger),
		iterator:    NewChunkIterator(chunks, config.BatchSize),
		logger:      logger,
	}, nil
}

// CheckpointKey is the processor type under which progress for namespace
// is saved.
func (r *Reembedder) CheckpointKey(namespace core.Namespace) string {
	return "reembed|" + string(r.processor.mode) + "|" + string(namespace)
}

// Run re-embeds the selected chunks of namespace. The checkpoint is saved
// after every page and removed once the pass completes.
func (r *Reembedder) Run(ctx context.Context, namespace core.Namespace) (*Result, error) {
	if namespace == "" {
		return nil, core.ErrInvalidNamespace
	}
	result := &Result{Namespace: namespace}
	key := r.CheckpointKey(namespace)

	afterID, offset, err := r.resumePoint(ctx, key)
	if err != nil {
		return nil, err
	}
	result.Resumed = afterID != ""

	all, err := r.chunks.ScanChunks(ctx, namespace, "", 0)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	total := len(all)
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in namespace %s\n", namespace)
		return result, r.clearCheckpoint(ctx, key)
	}

	if result.Resumed {
		fmt.Fprintf(r.progress, "Resuming reembed of %s after %s (%d/%d scanned)\n", namespace, afterID, offset, total)
	} else {
		fmt.Fprintf(r.progress, "Starting reembed of %d chunks in %s (mode: %s, batch size: %d)\n",
			total, namespace, r.processor.mode, r.config.BatchSize)
	}

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start(offset)
	scanned := offset

	err = r.iterator.ForEach(ctx, namespace, afterID, func(batch []*core.Chunk) error {
		res, err := r.processor.Process(ctx, namespace, batch)
		result.Selected += res.Selected
		result.Reembedded += res.Reembedded
		result.Failed += res.Failed
		if err != nil {
			return err
		}

		result.Scanned += len(batch)
		scanned += len(batch)
		tracker.Advance(len(batch), res.Failed)
		return r.saveCheckpoint(ctx, key, batch[len(batch)-1].ID, scanned)
	})
	tracker.Finish()
	if err != nil {
		r.logger.Error("reembed interrupted", "namespace", namespace, "scanned", result.Scanned, "err", err)
		return result, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembed complete. Re-embedded %d of %d selected chunks in %v\n",
		result.Reembedded, result.Selected, elapsed.Round(time.Millisecond))
	r.logger.Info("reembed finished",
		"namespace", namespace,
		"scanned", result.Scanned,
		"selected", result.Selected,
		"reembedded", result.Reembedded,
		"failed", result.Failed)

	return result, r.clearCheckpoint(ctx, key)
}

func (r *Reembedder) resumePoint(ctx context.Context, key string) (string, int, error) {
	if r.checkpoints == nil {
		return "", 0, nil
	}
	if r.config.Restart {
		return "", 0, r.clearCheckpoint(ctx, key)
	}
	cp, err := r.checkpoints.LoadCheckpoint(ctx, key)
	if err != nil {
		return "", 0, fmt.Errorf("loading checkpoint: %w", err)
	}
	if cp == nil {
		return "", 0, nil
	}
	return cp.LastID, cp.Processed, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, key, lastID string, processed int) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: key,
		LastID:        lastID,
		Processed:     processed,
	})
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func (r *Reembedder) clearCheckpoint(ctx context.Context, key string) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.DeleteCheckpoint(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}
