package reembed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/storage/badger"
	"github.com/poiesic/ragline/vectorindex"
)

const (
	testDim       = 8
	testNamespace = core.Namespace("bot|alice")
)

var testModel = ai.Model{Name: "text-embedding-3-small", Provider: ai.ProviderOpenAI, Dimension: testDim}

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failCalls map[int]bool
	texts     []string
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, model string, maxRetries int) ([][]float32, bool) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	fail := e.failCalls[call]
	if !fail {
		e.texts = append(e.texts, texts...)
	}
	e.mu.Unlock()
	if fail {
		return nil, false
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = mock.DeterministicVector(t, testDim)
	}
	return out, true
}

func (e *fakeEmbedder) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = 0
	e.texts = nil
	e.failCalls = map[int]bool{}
}

type fixture struct {
	repos    *badger.Repositories
	router   *vectorindex.Router
	embedder *fakeEmbedder
	indexer  *ingestion.Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	router, err := vectorindex.NewRouter(repos.Vectors)
	require.NoError(t, err)
	emb := &fakeEmbedder{failCalls: map[int]bool{}}
	ix, err := ingestion.NewIndexer(repos.Chunks, emb, router, testModel, ingestion.WithIndexBatchSize(10))
	require.NoError(t, err)
	return &fixture{repos: repos, router: router, embedder: emb, indexer: ix}
}

// addChunks stores n chunks in ns without embedding them. Chunks of
// testNamespace are named chunk-000.., others other-000..
func (f *fixture) addChunks(t *testing.T, ns core.Namespace, n int) {
	t.Helper()
	prefix := "chunk"
	if ns != testNamespace {
		prefix = "other"
	}
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			ID:          fmt.Sprintf("%s-%03d", prefix, i),
			DocumentID:  "doc-1",
			OwnerID:     "alice",
			Namespace:   ns,
			Index:       i,
			Content:     fmt.Sprintf("content %d", i),
			Summary:     fmt.Sprintf("summary %d", i),
			SummaryType: core.SummaryBasic,
		}
	}
	_, err := f.repos.Chunks.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
}

// seed stores and indexes n chunks, then clears the embedder's history.
func (f *fixture) seed(t *testing.T, ns core.Namespace, n int) {
	t.Helper()
	f.addChunks(t, ns, n)
	report, err := f.indexer.Index(context.Background(), ns)
	require.NoError(t, err)
	require.Equal(t, n, report.Embedded)
	f.embedder.reset()
}

// enhance replaces the summaries of ids the way a completed enhancement job does.
func (f *fixture) enhance(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	chunks, err := f.repos.Chunks.GetChunks(ctx, ids...)
	require.NoError(t, err)
	require.Len(t, chunks, len(ids))
	at := time.Now().UTC()
	for _, c := range chunks {
		c.Summary = "enhanced " + c.ID
		c.SummaryType = core.SummaryAIEnhanced
		c.EnhancedAt = &at
	}
	_, err = f.repos.Chunks.UpdateChunks(ctx, chunks...)
	require.NoError(t, err)
}

func (f *fixture) stale(t *testing.T, ns core.Namespace, model string) []string {
	t.Helper()
	chunks, err := f.repos.Chunks.ScanChunks(context.Background(), ns, "", 0)
	require.NoError(t, err)
	var ids []string
	for _, c := range chunks {
		if c.StaleVector(model) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
