package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/keywords"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/storage/badger"
	"github.com/poiesic/ragline/summarizer"
	"github.com/poiesic/ragline/tokenize"
)

const threeParagraphs = `Vector databases store embeddings produced by language models. Each embedding captures the meaning of a passage so that similar passages sit close together in the vector space, which makes semantic retrieval possible.

Chunking splits long documents into smaller windows before they are embedded. Overlapping windows keep sentences that straddle a boundary retrievable from both sides, at the cost of storing some text twice.

Namespaces isolate tenants inside a shared index. Every query names exactly one namespace, so one customer can never retrieve another customer's passages even when both use the same embedding model.`

func wordParams(window, overlap int) chunker.Params {
	p := chunker.DefaultParams()
	p.Encoding = "word"
	p.WindowTokens = window
	p.OverlapTokens = overlap
	return p
}

type pipelineFixture struct {
	repos     *badger.Repositories
	generator *mock.MockGenerator
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, opts ...Option) *pipelineFixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	gen := mock.NewMockGenerator()
	summ, err := summarizer.New(gen, summarizer.WithRetry(2, time.Millisecond, time.Millisecond))
	require.NoError(t, err)
	kw, err := keywords.New(keywords.WithTagger(nil))
	require.NoError(t, err)

	base := []Option{
		WithPoolSize(4),
		WithChunking(chunker.MethodToken, wordParams(50, 10)),
		WithKeywordExtractor(kw),
		WithWriteDelay(0),
	}
	p, err := NewPipeline(repos.Documents, repos.Chunks, summ, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &pipelineFixture{repos: repos, generator: gen, pipeline: p}
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	summ, err := summarizer.New(mock.NewMockGenerator())
	require.NoError(t, err)

	_, err = NewPipeline(nil, repos.Chunks, summ)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewPipeline(repos.Documents, nil, summ)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewPipeline(repos.Documents, repos.Chunks, nil)
	assert.ErrorIs(t, err, ErrSummarizerRequired)

	_, err = NewPipeline(repos.Documents, repos.Chunks, summ, WithChunking(chunker.MethodToken, wordParams(10, 10)))
	assert.ErrorIs(t, err, chunker.ErrInvalidConfiguration)
}

func TestIngest_TokenWindowScenario(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	report, err := f.pipeline.Ingest(ctx, DocumentInput{
		OwnerID:  "alice",
		TenantID: "bot",
		FileName: "vectors.md",
		FileType: "md",
		Text:     threeParagraphs,
	})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Processed)
	require.Len(t, report.Documents, 1)

	res := report.Documents[0]
	assert.Equal(t, core.DocumentProcessed, res.Status)
	assert.Equal(t, chunker.MethodToken, res.Method)
	assert.GreaterOrEqual(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, report.ChunksCreated)

	chunks, err := f.repos.Chunks.GetChunksByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, res.Chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len(tokenize.SplitWords(c.Content)), 50)
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
		assert.Equal(t, core.SummaryBasic, c.SummaryType)
		assert.True(t, strings.HasPrefix(c.Summary, "Summary: "))
		assert.NotEmpty(t, c.Keywords)
		assert.Equal(t, core.Namespace("bot|alice"), c.Namespace)
		assert.Equal(t, "vectors.md", c.FileName)
		assert.False(t, c.Embedded())
	}

	// Consecutive windows share ten words at the boundary.
	for i := 1; i < len(chunks); i++ {
		prev := tokenize.SplitWords(chunks[i-1].Content)
		next := tokenize.SplitWords(chunks[i].Content)
		require.GreaterOrEqual(t, len(prev), 10)
		require.GreaterOrEqual(t, len(next), 10)
		assert.Equal(t, prev[len(prev)-10:], next[:10])
	}

	doc, err := f.repos.Documents.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentProcessed, doc.Status)
	assert.Equal(t, res.Chunks, doc.ChunkCount)
	assert.Equal(t, "token", doc.ChunkingMethod)
	assert.Equal(t, core.ContentHash(threeParagraphs), doc.ContentHash)
}

func TestIngest_DuplicateIsSkipped(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	in := DocumentInput{OwnerID: "alice", TenantID: "bot", FileName: "a.md", Text: threeParagraphs}

	first, err := f.pipeline.Ingest(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)
	docID := first.Documents[0].DocumentID
	before, err := f.repos.Chunks.GetChunksByDocument(ctx, docID)
	require.NoError(t, err)
	calls := f.generator.CallCount()

	in.FileName = "a-copy.md"
	second, err := f.pipeline.Ingest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.ChunksCreated)
	assert.True(t, second.Documents[0].Skipped())
	assert.Equal(t, docID, second.Documents[0].DuplicateOf)

	after, err := f.repos.Chunks.GetChunksByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Equal(t, calls, f.generator.CallCount())

	docs, err := f.repos.Documents.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngest_DuplicatesWithinOneRun(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	in := DocumentInput{OwnerID: "alice", TenantID: "bot", FileName: "a.md", Text: threeParagraphs}

	report, err := f.pipeline.Ingest(ctx, in, in, in)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Skipped)

	docs, err := f.repos.Documents.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Zero(t, f.pipeline.hashLocks.Len(), "hash locks are released after the run")
}

func TestIngest_SameTextDifferentOwners(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	report, err := f.pipeline.Ingest(ctx,
		DocumentInput{OwnerID: "alice", TenantID: "bot", FileName: "a.md", Text: threeParagraphs},
		DocumentInput{OwnerID: "bob", TenantID: "bot", FileName: "b.md", Text: threeParagraphs},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, report.Skipped)
}

func TestIngest_ManyDocumentsConcurrently(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	inputs := make([]DocumentInput, 12)
	for i := range inputs {
		inputs[i] = DocumentInput{
			OwnerID:  "alice",
			TenantID: "bot",
			FileName: fmt.Sprintf("doc-%02d.md", i),
			Text:     fmt.Sprintf("Document number %d.\n\n%s", i, threeParagraphs),
		}
	}
	report, err := f.pipeline.Ingest(ctx, inputs...)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Processed)

	for i, res := range report.Documents {
		assert.Equal(t, inputs[i].FileName, res.FileName)
		chunks, err := f.repos.Chunks.GetChunksByDocument(ctx, res.DocumentID)
		require.NoError(t, err)
		assert.Len(t, chunks, res.Chunks)
	}

	pending, err := f.repos.Chunks.GetUnembeddedChunks(ctx, "bot|alice", 0)
	require.NoError(t, err)
	assert.Len(t, pending, report.ChunksCreated)
}

func TestIngest_SummaryFailureStoresPlaceholder(t *testing.T) {
	f := newPipelineFixture(t)
	f.generator.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("rate limited")
	}

	report, err := f.pipeline.Ingest(context.Background(), DocumentInput{
		OwnerID: "alice", TenantID: "bot", FileName: "a.md", Text: threeParagraphs,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	res := report.Documents[0]
	assert.Equal(t, res.Chunks, res.DegradedSummaries)

	chunks, err := f.repos.Chunks.GetChunksByDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Contains(t, c.Summary, "rate limited")
		assert.Equal(t, core.SummaryBasic, c.SummaryType)
	}
}

func TestIngest_InvalidInputFails(t *testing.T) {
	f := newPipelineFixture(t)
	bad := wordParams(5, 8)

	report, err := f.pipeline.Ingest(context.Background(),
		DocumentInput{OwnerID: "", TenantID: "bot", FileName: "no-owner.md", Text: "text"},
		DocumentInput{OwnerID: "alice", TenantID: "bot", FileName: "bad-params.md", Text: threeParagraphs, Params: &bad},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.ErrorIs(t, report.Documents[0].Err, core.ErrInvalidNamespace)
	assert.ErrorIs(t, report.Documents[1].Err, chunker.ErrInvalidConfiguration)
	assert.ErrorIs(t, report.Err(), chunker.ErrInvalidConfiguration)

	doc, err := f.repos.Documents.GetDocument(context.Background(), report.Documents[1].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentFailed, doc.Status)
	assert.NotEmpty(t, doc.Error)
}

func TestIngest_FailedDocumentIsRerun(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	bad := wordParams(5, 8)
	in := DocumentInput{OwnerID: "alice", TenantID: "bot", FileName: "a.md", Text: threeParagraphs, Params: &bad}

	first, err := f.pipeline.Ingest(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, first.Failed)
	docID := first.Documents[0].DocumentID

	in.Params = nil
	second, err := f.pipeline.Ingest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, docID, second.Documents[0].DocumentID)

	doc, err := f.repos.Documents.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentProcessed, doc.Status)
	assert.Empty(t, doc.Error)
}

func TestIngest_EmptyTextProducesNoChunks(t *testing.T) {
	f := newPipelineFixture(t)

	report, err := f.pipeline.Ingest(context.Background(), DocumentInput{
		OwnerID: "alice", TenantID: "bot", FileName: "blank.md", Text: "   \n\n ",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Documents[0].Chunks)
	assert.Zero(t, f.generator.CallCount())
}

func TestIngest_SemanticWithoutEmbedderFallsBack(t *testing.T) {
	f := newPipelineFixture(t)
	params := wordParams(50, 10)

	report, err := f.pipeline.Ingest(context.Background(), DocumentInput{
		OwnerID:  "alice",
		TenantID: "bot",
		FileName: "a.md",
		Text:     threeParagraphs,
		Method:   chunker.MethodSemantic,
		Params:   &params,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	res := report.Documents[0]
	assert.True(t, res.FellBack)
	assert.Equal(t, chunker.MethodToken, res.Method)
	assert.Greater(t, res.Chunks, 0)
}

func TestIngest_WritesAreSerialized(t *testing.T) {
	f := newPipelineFixture(t, WithWriteDelay(5*time.Millisecond))
	var inFlight, maxInFlight atomic.Int32
	f.pipeline.chunks = &observedChunks{ChunkRepository: f.repos.Chunks, inFlight: &inFlight, max: &maxInFlight}

	inputs := make([]DocumentInput, 6)
	for i := range inputs {
		inputs[i] = DocumentInput{OwnerID: "alice", TenantID: "bot", FileName: fmt.Sprint(i), Text: fmt.Sprintf("%d %s", i, threeParagraphs)}
	}
	report, err := f.pipeline.Ingest(context.Background(), inputs...)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Processed)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

type observedChunks struct {
	storage.ChunkRepository
	inFlight *atomic.Int32
	max      *atomic.Int32
}

func (o *observedChunks) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	n := o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	for {
		cur := o.max.Load()
		if n <= cur || o.max.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return o.ChunkRepository.AddChunks(ctx, chunks...)
}
