package ragline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/enhancement"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/keywords"
	"github.com/poiesic/ragline/ratelimit"
	"github.com/poiesic/ragline/reembed"
	"github.com/poiesic/ragline/search"
)

const article = `Vector databases store embeddings produced by language models. Each embedding captures the meaning of a passage so that similar passages sit close together in the vector space.

Chunking splits long documents into smaller windows before they are embedded. Overlapping windows keep sentences that straddle a boundary retrievable from both sides.

Namespaces isolate tenants inside a shared index. Every query names exactly one namespace, so one customer never retrieves another customer's passages.`

type stubBatchClient struct {
	mu       sync.Mutex
	uploaded []byte
}

func (c *stubBatchClient) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploaded = append([]byte(nil), data...)
	return "file-in", nil
}

func (c *stubBatchClient) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (string, error) {
	return "batch_1", nil
}

func (c *stubBatchClient) GetBatch(ctx context.Context, batchID string) (enhancement.StatusReport, error) {
	return enhancement.StatusReport{}, nil
}

func (c *stubBatchClient) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.AI.EmbeddingModel = "multilingual-e5-small"
	cfg.AI.FallbackChain = []string{"multilingual-e5-small"}
	cfg.AI.RequestsPerMinute = 0
	cfg.Chunking.Encoding = "word"
	cfg.Chunking.WindowTokens = 30
	cfg.Chunking.OverlapTokens = 5
	cfg.Pipeline.PoolSize = 2
	cfg.Pipeline.WriteDelay = 0
	cfg.Index.BatchSize = 4
	return cfg
}

func openTestService(t *testing.T, cfg *config.Config, opts ...Option) *Service {
	t.Helper()
	factory := func(ctx context.Context, m ai.Model) (ai.Embedder, error) {
		return mock.NewMockEmbedder(m.Dimension), nil
	}
	base := []Option{
		WithInMemory(),
		WithGenerator(mock.NewMockGenerator()),
		WithEmbeddingClientFactory(factory),
	}
	svc, err := Open(context.Background(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func ingestArticle(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	kw, err := keywords.New(keywords.WithTagger(nil))
	require.NoError(t, err)
	p, err := svc.NewPipeline(ctx, ingestion.WithKeywordExtractor(kw))
	require.NoError(t, err)
	defer p.Release()

	report, err := p.Ingest(ctx, ingestion.DocumentInput{
		OwnerID:  "alice",
		TenantID: "bot",
		FileName: "vectors.md",
		FileType: "md",
		Text:     article,
	})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, 1, report.Processed)
	require.Greater(t, report.ChunksCreated, 1)
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = ""
	_, err := Open(context.Background(), cfg, WithInMemory())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = Open(context.Background(), nil)
	assert.Error(t, err)
}

func TestOpen_InMemory(t *testing.T) {
	cfg := testConfig(t)
	svc := openTestService(t, cfg)

	assert.Same(t, cfg, svc.Config())
	assert.NotNil(t, svc.Repositories())
	assert.NotNil(t, svc.VectorIndex())
	assert.NotNil(t, svc.Embeddings())

	m, err := svc.EmbeddingModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "multilingual-e5-small", m.Name)
	assert.Equal(t, 384, m.Dimension)
}

func TestOpen_OnDisk(t *testing.T) {
	cfg := testConfig(t)
	svc, err := Open(context.Background(), cfg, WithGenerator(mock.NewMockGenerator()))
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	_, err = os.Stat(filepath.Join(cfg.DataDir, "db"))
	assert.NoError(t, err)
}

func TestService_IngestIndexSearch(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t, testConfig(t))
	ingestArticle(t, svc)

	ns := core.Namespace("bot|alice")
	ix, err := svc.NewIndexer(ctx)
	require.NoError(t, err)
	report, err := ix.Index(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, report.Candidates, report.Embedded)
	assert.Zero(t, report.Failed)

	s, err := svc.NewSearcher(ctx, search.WithMinSimilarity(-1))
	require.NoError(t, err)
	results, err := s.Search(ctx, ns, "namespace isolation for tenants", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	for _, r := range results {
		assert.Equal(t, ns, r.Chunk.Namespace)
	}

	other, err := s.Search(ctx, core.Namespace("bot|bob"), "namespace isolation", 3)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestService_Reembed(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t, testConfig(t))
	ingestArticle(t, svc)

	ns := core.Namespace("bot|alice")
	ix, err := svc.NewIndexer(ctx)
	require.NoError(t, err)
	_, err = ix.Index(ctx, ns)
	require.NoError(t, err)

	cfg := reembed.DefaultConfig()
	cfg.Mode = reembed.ModeAll
	var progress bytes.Buffer
	r, err := svc.NewReembedder(ctx, cfg, &progress)
	require.NoError(t, err)

	result, err := r.Run(ctx, ns)
	require.NoError(t, err)
	assert.Positive(t, result.Scanned)
	assert.Equal(t, result.Scanned, result.Reembedded)
	assert.Contains(t, progress.String(), "Reembed complete")
}

func TestService_SubmitArchivesInput(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	client := &stubBatchClient{}
	svc := openTestService(t, cfg, WithBatchClient(client))
	ingestArticle(t, svc)

	m, err := svc.NewManager()
	require.NoError(t, err)
	job, err := m.Submit(ctx, enhancement.SubmitRequest{TenantID: "bot", OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, core.JobSubmitted, job.Status)
	assert.NotEmpty(t, client.uploaded)

	archived, err := os.ReadFile(filepath.Join(cfg.DataDir, "artifacts", "enhancement", job.ID, "input.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, client.uploaded, archived)
}

func TestService_ArtifactsDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Artifacts.Backend = "none"
	svc := openTestService(t, cfg, WithBatchClient(&stubBatchClient{}))
	ingestArticle(t, svc)

	m, err := svc.NewManager()
	require.NoError(t, err)
	_, err = m.Submit(ctx, enhancement.SubmitRequest{TenantID: "bot", OwnerID: "alice"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.DataDir, "artifacts"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_DataDirIsFile(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(cfg.DataDir, "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.DataDir = file

	_, err := Open(context.Background(), cfg, WithGenerator(mock.NewMockGenerator()))
	assert.Error(t, err)
}

func TestOpen_SeparateLimiters(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.RequestsPerMinute = 600
	cfg.AI.SummaryRequestsPerMinute = 60
	svc := openTestService(t, cfg)

	embed, ok := svc.embedLimiter.(*ratelimit.RateLimiter)
	require.True(t, ok)
	summary, ok := svc.summaryLimiter.(*ratelimit.RateLimiter)
	require.True(t, ok)
	assert.NotSame(t, embed, summary)

	// a throttled summary provider must not stall embedding calls
	summary.Pause(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, embed.Wait(ctx))
}

func TestNewPipeline_SemanticChunkingUsesResolvedModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.EmbeddingModel = "multilingual-e5-base"
	cfg.AI.FallbackChain = []string{"multilingual-e5-base", "multilingual-e5-small"}
	cfg.Chunking.Method = "semantic"

	var (
		mu        sync.Mutex
		embedders = make(map[string]*mock.MockEmbedder)
	)
	factory := func(ctx context.Context, m ai.Model) (ai.Embedder, error) {
		mu.Lock()
		defer mu.Unlock()
		e := mock.NewMockEmbedder(m.Dimension)
		if m.Name == "multilingual-e5-base" {
			e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
				return nil, errors.New("model not loaded")
			}
			e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errors.New("model not loaded")
			}
		}
		embedders[m.Name] = e
		return e, nil
	}
	svc := openTestService(t, cfg, WithEmbeddingClientFactory(factory))

	ctx := context.Background()
	kw, err := keywords.New(keywords.WithTagger(nil))
	require.NoError(t, err)
	p, err := svc.NewPipeline(ctx, ingestion.WithKeywordExtractor(kw))
	require.NoError(t, err)
	defer p.Release()

	report, err := p.Ingest(ctx, ingestion.DocumentInput{
		OwnerID: "alice", TenantID: "bot", FileName: "vectors.md", FileType: "md", Text: article,
	})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	mu.Lock()
	small := embedders["multilingual-e5-small"]
	mu.Unlock()
	require.NotNil(t, small)
	var sentences int
	for _, text := range small.Texts() {
		if strings.Contains(text, "Vector databases store embeddings") {
			sentences++
		}
	}
	assert.Positive(t, sentences, "sentences are embedded by the fallback model")
}
