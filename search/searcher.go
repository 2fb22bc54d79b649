package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/vectorindex"
)

const (
	keywordBoost  = 1.5
	verbatimBonus = 0.3

	defaultMinSimilarity   = 0.60
	defaultCandidateFactor = 3
)

// QueryEmbedder embeds search queries. embedding.Router implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text, model string) ([]float32, error)
}

// VectorIndex is the read side of the vector index router.
// vectorindex.Router implements it.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, provider ai.Provider, dimension int) (vectorindex.Handle, error)
	Query(ctx context.Context, h vectorindex.Handle, namespace core.Namespace, vector []float32, topK int) ([]vectorindex.Match, error)
}

// Result is one ranked chunk.
type Result struct {
	Chunk      *core.Chunk
	Score      float64
	Similarity float64
	// Keywords lists the chunk keywords found in the query.
	Keywords []string
	Verbatim bool
}

// Searcher provides hybrid semantic and keyword search over indexed chunks.
type Searcher struct {
	chunks          storage.ChunkRepository
	embedder        QueryEmbedder
	index           VectorIndex
	model           ai.Model
	minSimilarity   float64
	candidateFactor int
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity drops vector matches scoring below threshold. Default: 0.60.
func WithMinSimilarity(threshold float64) Option {
	return func(s *Searcher) error {
		if threshold < -1 || threshold > 1 {
			return fmt.Errorf("min similarity must be within [-1, 1], got %v", threshold)
		}
		s.minSimilarity = threshold
		return nil
	}
}

// WithCandidateFactor sets how many vector candidates are fetched per
// requested hit before rescoring. Default: 3.
func WithCandidateFactor(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("candidate factor must be positive, got %d", n)
		}
		s.candidateFactor = n
		return nil
	}
}

// NewSearcher creates a new searcher querying with model, which must be the
// model the namespace was indexed with.
func NewSearcher(chunks storage.ChunkRepository, embedder QueryEmbedder, index VectorIndex, model ai.Model, opts ...Option) (*Searcher, error) {
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

	s := &Searcher{
		chunks:          chunks,
		embedder:        embedder,
		index:           index,
		model:           model,
		minSimilarity:   defaultMinSimilarity,
		candidateFactor: defaultCandidateFactor,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to maxHits chunks of namespace relevant to query,
// ranked by score.
func (s *Searcher) Search(ctx context.Context, namespace core.Namespace, query string, maxHits int) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, namespace, query, maxHits, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, namespace core.Namespace, query string, maxHits int, monitor SearchMonitor) ([]*Result, error) {
	if namespace == "" {
		return nil, core.ErrInvalidNamespace
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		return []*Result{}, nil
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(namespace, query)

	// 1. Semantic candidates
	vector, err := s.embedder.EmbedQuery(ctx, query, s.model.Name)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	h, err := s.index.EnsureIndex(ctx, s.model.Provider, s.model.Dimension)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Query(ctx, h, namespace, vector, maxHits*s.candidateFactor)
	if err != nil {
		s.logger.Error("error querying vector index", "index", h.Name, "namespace", namespace, "err", err)
		return nil, err
	}

	similarity := make(map[string]float64, len(matches))
	ids := make([]string, 0, len(matches))
	kept := matches[:0:0]
	for _, m := range matches {
		if m.Score < s.minSimilarity {
			continue
		}
		similarity[m.ID] = m.Score
		ids = append(ids, m.ID)
		kept = append(kept, m)
	}
	monitor.AfterSemanticSearch(kept)

	if len(ids) == 0 {
		monitor.Finish(nil)
		return []*Result{}, nil
	}

	// 2. Retrieve the chunks behind the matches
	chunks, err := s.chunks.GetChunks(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving chunks", "chunkCount", len(ids), "err", err)
		return nil, err
	}
	monitor.AfterChunkRetrieval(chunks)

	// 3. Rescore with keyword and verbatim signals
	queryWords := tokenizeAndFilter(query)
	querySet := wordSet(queryWords)

	results := make([]*Result, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Namespace != namespace {
			s.logger.Warn("dropping match from another namespace", "chunk_id", chunk.ID, "namespace", chunk.Namespace)
			continue
		}
		if chunk.VectorRef == nil || chunk.VectorRef.Index != h.Name {
			// Orphaned vector from an interrupted write or an earlier index.
			s.logger.Debug("dropping match without a confirmed vector", "chunk_id", chunk.ID, "index", h.Name)
			continue
		}

		r := &Result{Chunk: chunk, Similarity: similarity[chunk.ID]}
		r.Score = r.Similarity
		if r.Keywords = matchingKeywords(chunk.Keywords, querySet); len(r.Keywords) > 0 {
			r.Score *= keywordBoost
			monitor.KeywordHit(chunk, r.Keywords)
		} else {
			monitor.SemanticHit(chunk)
		}
		if containsAllQueryWords(chunk.Content, queryWords) {
			r.Verbatim = true
			r.Score += verbatimBonus
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}
