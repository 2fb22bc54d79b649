package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/keywords"
	"github.com/poiesic/ragline/summarizer"
)

// chunkProcessor builds the chunk records of one document: split, then
// summarize, then extract keywords.
type chunkProcessor struct {
	chunker     *chunker.Chunker
	summarizer  *summarizer.Summarizer
	keywords    *keywords.Extractor
	maxKeywords int
	logger      *slog.Logger
}

// processed is the outcome of building one document's chunks.
type processed struct {
	chunks   []*core.Chunk
	method   chunker.Method
	fellBack bool
	degraded int
}

func newChunkProcessor(c *chunker.Chunker, s *summarizer.Summarizer, k *keywords.Extractor, maxKeywords int, logger *slog.Logger) *chunkProcessor {
	return &chunkProcessor{
		chunker:     c,
		summarizer:  s,
		keywords:    k,
		maxKeywords: maxKeywords,
		logger:      logger.With("processor", "chunks"),
	}
}

// process splits text and returns unsaved chunks for doc. Chunk indices
// follow split order.
func (cp *chunkProcessor) process(ctx context.Context, doc *core.Document, text string, method chunker.Method, params chunker.Params) (*processed, error) {
	split, err := cp.chunker.Split(ctx, text, method, params)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", doc.FileName, err)
	}
	if split.FellBack() {
		cp.logger.Warn("chunking fell back",
			"document_id", doc.ID,
			"from", split.FallbackFrom,
			"to", split.Method,
			"err", split.FallbackErr)
	}

	out := &processed{method: split.Method, fellBack: split.FellBack()}
	if len(split.Segments) == 0 {
		return out, nil
	}

	cp.logger.Debug("summarizing chunks", "document_id", doc.ID, "chunks", len(split.Segments))
	summaries := cp.summarizer.SummarizeAll(ctx, text, split.Segments)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, len(summaries))
	for i, s := range summaries {
		texts[i] = s.Text
		if s.Degraded() {
			out.degraded++
		}
	}
	kws := cp.keywords.ExtractAll(split.Segments, texts, cp.maxKeywords)

	out.chunks = make([]*core.Chunk, len(split.Segments))
	for i, segment := range split.Segments {
		out.chunks[i] = &core.Chunk{
			ID:             core.NewID(),
			DocumentID:     doc.ID,
			OwnerID:        doc.OwnerID,
			TenantID:       doc.TenantID,
			Namespace:      doc.Namespace,
			Index:          i,
			FileName:       doc.FileName,
			Content:        segment,
			Summary:        summaries[i].Text,
			SummaryType:    summaries[i].Type,
			Keywords:       kws[i],
			ChunkingMethod: string(split.Method),
		}
	}
	return out, nil
}
