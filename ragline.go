// Package ragline wires the content indexing pipeline together.
//
// A Service opens the repositories and routers described by a
// config.Config and hands out the workers built on them: the ingestion
// pipeline, the indexer, the enhancement job manager, the reembedder and
// the searcher.
package ragline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/gemini"
	"github.com/poiesic/ragline/ai/openai"
	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/embedding"
	"github.com/poiesic/ragline/enhancement"
	batchopenai "github.com/poiesic/ragline/enhancement/openai"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/objectstore"
	"github.com/poiesic/ragline/objectstore/local"
	"github.com/poiesic/ragline/objectstore/s3"
	"github.com/poiesic/ragline/ratelimit"
	"github.com/poiesic/ragline/reembed"
	"github.com/poiesic/ragline/search"
	"github.com/poiesic/ragline/storage/badger"
	"github.com/poiesic/ragline/summarizer"
	"github.com/poiesic/ragline/vectorindex"
	"github.com/poiesic/ragline/vectorindex/postgres"
)

type Service struct {
	cfg        *config.Config
	aiConfig   *ai.Config
	repos      *badger.Repositories
	pgStore    *postgres.Store
	vectors    *vectorindex.Router
	embeddings *embedding.Router
	artifacts  objectstore.Store
	notifier   enhancement.Notifier
	logger     *slog.Logger

	// Summary and embedding calls draw from separate provider quotas.
	embedLimiter   ratelimit.Limiter
	summaryLimiter ratelimit.Limiter

	mu          sync.Mutex
	model       *ai.Model
	generator   ai.Generator
	batchClient enhancement.BatchClient
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger        *slog.Logger
	inMemory      bool
	generator     ai.Generator
	clientFactory embedding.ClientFactory
	batchClient   enhancement.BatchClient
	notifier      enhancement.Notifier
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithInMemory keeps the badger database in memory instead of DataDir.
func WithInMemory() Option {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// WithGenerator replaces the summary generator built from the AI config.
func WithGenerator(g ai.Generator) Option {
	return func(o *serviceOptions) {
		o.generator = g
	}
}

// WithEmbeddingClientFactory replaces the provider clients of the
// embedding router.
func WithEmbeddingClientFactory(f embedding.ClientFactory) Option {
	return func(o *serviceOptions) {
		o.clientFactory = f
	}
}

// WithBatchClient replaces the OpenAI batch client used for enhancement.
func WithBatchClient(c enhancement.BatchClient) Option {
	return func(o *serviceOptions) {
		o.batchClient = c
	}
}

// WithNotifier sets the enhancement event notifier.
func WithNotifier(n enhancement.Notifier) Option {
	return func(o *serviceOptions) {
		o.notifier = n
	}
}

// Open validates cfg and opens every store it names.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aiCfg, err := cfg.AIConfig()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		aiConfig:    aiCfg,
		generator:   options.generator,
		batchClient: options.batchClient,
		notifier:    options.notifier,
		logger:      options.logger,
	}

	s.repos, err = badger.OpenRepositories(filepath.Join(cfg.DataDir, "db"), options.inMemory)
	if err != nil {
		return nil, fmt.Errorf("opening repositories: %w", err)
	}

	var store vectorindex.Store = s.repos.Vectors
	if cfg.VectorStore.Backend == "postgres" {
		s.pgStore, err = postgres.Open(ctx, cfg.VectorStore.DSN, postgres.WithLogger(s.logger))
		if err != nil {
			s.repos.Close()
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
		store = s.pgStore
	}

	if s.vectors, err = vectorindex.NewRouter(store,
		vectorindex.WithBatchSize(cfg.Index.UpsertBatch),
		vectorindex.WithLogger(s.logger)); err != nil {
		s.Close()
		return nil, err
	}

	if s.embedLimiter, err = newLimiter(cfg.AI.RequestsPerMinute, cfg.AI.Burst); err != nil {
		s.Close()
		return nil, err
	}
	if s.summaryLimiter, err = newLimiter(cfg.AI.SummaryRate(), cfg.AI.Burst); err != nil {
		s.Close()
		return nil, err
	}

	routerOpts := []embedding.Option{embedding.WithLimiter(s.embedLimiter), embedding.WithLogger(s.logger)}
	if options.clientFactory != nil {
		routerOpts = append(routerOpts, embedding.WithClientFactory(options.clientFactory))
	}
	if s.embeddings, err = embedding.NewRouter(aiCfg, routerOpts...); err != nil {
		s.Close()
		return nil, err
	}

	if s.artifacts, err = openArtifacts(ctx, cfg); err != nil {
		s.Close()
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}

	return s, nil
}

func newLimiter(requestsPerMinute float64, burst int) (ratelimit.Limiter, error) {
	if requestsPerMinute <= 0 {
		return ratelimit.Noop{}, nil
	}
	return ratelimit.New(requestsPerMinute, burst)
}

func openArtifacts(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	a := cfg.Artifacts
	switch a.Backend {
	case "s3":
		return s3.New(ctx, a.Region, a.Bucket, a.Prefix, a.KMSKeyID)
	case "none":
		return nil, nil
	default:
		dir := a.Dir
		if dir == "" {
			dir = filepath.Join(cfg.DataDir, "artifacts")
		}
		return local.New(dir), nil
	}
}

// Close releases every store. It is safe to call on a partially opened Service.
func (s *Service) Close() error {
	var errs []error
	if s.embeddings != nil {
		if err := s.embeddings.Close(); err != nil {
			s.logger.Error("error closing embedding clients", "err", err)
			errs = append(errs, err)
		}
	}
	s.mu.Lock()
	if closer, ok := s.generator.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("error closing generator", "err", err)
			errs = append(errs, err)
		}
	}
	s.mu.Unlock()
	if s.pgStore != nil {
		if err := s.pgStore.Close(); err != nil {
			s.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if s.repos != nil {
		if err := s.repos.Close(); err != nil {
			s.logger.Error("error closing repositories", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Config() *config.Config {
	return s.cfg
}

func (s *Service) Repositories() *badger.Repositories {
	return s.repos
}

func (s *Service) VectorIndex() *vectorindex.Router {
	return s.vectors
}

func (s *Service) Embeddings() *embedding.Router {
	return s.embeddings
}

// EmbeddingModel resolves the configured embedding model through the
// fallback chain. The result is cached so every worker of the Service
// embeds with the same model.
func (s *Service) EmbeddingModel(ctx context.Context) (ai.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		return *s.model, nil
	}
	m, err := s.embeddings.Initialize(ctx, s.cfg.AI.EmbeddingModel)
	if err != nil {
		return ai.Model{}, err
	}
	s.model = &m
	return m, nil
}

func (s *Service) summaryGenerator(ctx context.Context) (ai.Generator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generator != nil {
		return s.generator, nil
	}
	var (
		g   ai.Generator
		err error
	)
	switch s.aiConfig.SummaryProvider {
	case ai.ProviderGoogle:
		g, err = gemini.NewGenerator(ctx, s.aiConfig, s.aiConfig.SummaryModel)
	default:
		g, err = openai.NewGenerator(s.aiConfig, s.aiConfig.SummaryModel)
	}
	if err != nil {
		return nil, err
	}
	s.generator = g
	return g, nil
}

// NewSummarizer builds the summarizer used by the pipeline.
func (s *Service) NewSummarizer(ctx context.Context) (*summarizer.Summarizer, error) {
	gen, err := s.summaryGenerator(ctx)
	if err != nil {
		return nil, err
	}
	p := s.cfg.Pipeline
	return summarizer.New(gen,
		summarizer.WithLimiter(s.summaryLimiter),
		summarizer.WithRetry(p.SummaryRetries, time.Second, 30*time.Second),
		summarizer.WithCallTimeout(p.SummaryTimeout.Std()),
		summarizer.WithContextBudget(p.SummaryContextRunes),
		summarizer.WithGroupSize(p.SummaryGroupSize),
		summarizer.WithLogger(s.logger),
	)
}

// NewPipeline builds an ingestion pipeline from the configuration. opts
// are applied after the configured ones. The caller must Release it.
func (s *Service) NewPipeline(ctx context.Context, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	summ, err := s.NewSummarizer(ctx)
	if err != nil {
		return nil, err
	}
	method, err := s.cfg.ChunkingMethod()
	if err != nil {
		return nil, err
	}

	chunkOpts := []chunker.Option{chunker.WithLogger(s.logger)}
	if model, err := s.EmbeddingModel(ctx); err != nil {
		s.logger.Warn("no embedding model for semantic chunking", "err", err)
	} else if e, err := s.embeddings.Embedder(model.Name); err == nil {
		chunkOpts = append(chunkOpts, chunker.WithEmbedder(e))
	}
	ch, err := chunker.New(chunkOpts...)
	if err != nil {
		return nil, err
	}

	p := s.cfg.Pipeline
	base := []ingestion.Option{
		ingestion.WithLogger(s.logger),
		ingestion.WithPoolSize(p.PoolSize),
		ingestion.WithChunker(ch),
		ingestion.WithChunking(method, s.cfg.ChunkParams()),
		ingestion.WithMaxKeywords(p.MaxKeywords),
		ingestion.WithWriteDelay(p.WriteDelay.Std()),
	}
	return ingestion.NewPipeline(s.repos.Documents, s.repos.Chunks, summ, append(base, opts...)...)
}

// NewIndexer builds an indexer for the resolved embedding model.
func (s *Service) NewIndexer(ctx context.Context, opts ...ingestion.IndexerOption) (*ingestion.Indexer, error) {
	model, err := s.EmbeddingModel(ctx)
	if err != nil {
		return nil, err
	}
	base := []ingestion.IndexerOption{
		ingestion.WithIndexBatchSize(s.cfg.Index.BatchSize),
		ingestion.WithEmbedRetries(s.cfg.Index.EmbedRetries),
		ingestion.WithIndexerLogger(s.logger),
	}
	return ingestion.NewIndexer(s.repos.Chunks, s.embeddings, s.vectors, model, append(base, opts...)...)
}

// NewSearcher builds a searcher for the resolved embedding model.
func (s *Service) NewSearcher(ctx context.Context, opts ...search.Option) (*search.Searcher, error) {
	model, err := s.EmbeddingModel(ctx)
	if err != nil {
		return nil, err
	}
	base := []search.Option{
		search.WithLogger(s.logger),
		search.WithMinSimilarity(s.cfg.Search.MinSimilarity),
		search.WithCandidateFactor(s.cfg.Search.CandidateFactor),
	}
	return search.NewSearcher(s.repos.Chunks, s.embeddings, s.vectors, model, append(base, opts...)...)
}

// NewReembedder builds a reembedder writing progress to progress.
func (s *Service) NewReembedder(ctx context.Context, cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	ix, err := s.NewIndexer(ctx)
	if err != nil {
		return nil, err
	}
	return reembed.NewReembedder(s.repos.Chunks, s.repos.Checkpoints, ix, cfg, progress, s.logger)
}

func (s *Service) enhancementClient() (enhancement.BatchClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchClient != nil {
		return s.batchClient, nil
	}
	c, err := batchopenai.New(s.cfg.EnhancementBaseURL(), s.cfg.EnhancementAPIKey(), batchopenai.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.batchClient = c
	return c, nil
}

// NewManager builds the enhancement job manager.
func (s *Service) NewManager(opts ...enhancement.Option) (*enhancement.Manager, error) {
	client, err := s.enhancementClient()
	if err != nil {
		return nil, err
	}
	e := s.cfg.Enhancement
	base := []enhancement.Option{
		enhancement.WithModel(e.Model),
		enhancement.WithMaxContentRunes(e.MaxContentRunes),
		enhancement.WithMaxTokens(e.MaxTokens),
		enhancement.WithLogger(s.logger),
	}
	if s.artifacts != nil {
		base = append(base, enhancement.WithArtifactStore(s.artifacts))
	}
	if s.notifier != nil {
		base = append(base, enhancement.WithNotifier(s.notifier))
	}
	return enhancement.NewManager(s.repos.Chunks, s.repos.Jobs, client, append(base, opts...)...)
}
