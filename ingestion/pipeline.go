package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/keylock"
	"github.com/poiesic/ragline/keywords"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/summarizer"
)

const (
	defaultWriteDelay  = 10 * time.Millisecond
	defaultMaxKeywords = 10
)

// DocumentInput is one parsed document to ingest.
type DocumentInput struct {
	OwnerID  string
	TenantID string
	FileName string
	FileType string
	Text     string
	// Method selects the chunking strategy. Empty uses the pipeline default.
	Method chunker.Method
	// Params overrides the chunking parameters. Nil uses the pipeline default.
	Params *chunker.Params
}

// DocumentResult is the outcome of ingesting one document.
type DocumentResult struct {
	FileName   string
	DocumentID string
	Status     core.DocumentStatus
	Chunks     int
	// DuplicateOf is the id of the existing document when this one was skipped.
	DuplicateOf string
	Method      chunker.Method
	FellBack    bool
	// DegradedSummaries counts chunks stored with a placeholder summary.
	DegradedSummaries int
	Err               error
}

// Skipped reports whether the document was a duplicate.
func (r DocumentResult) Skipped() bool {
	return r.DuplicateOf != ""
}

// Report aggregates a run over several documents. Documents holds one
// result per input, in input order.
type Report struct {
	Processed     int
	Failed        int
	Skipped       int
	ChunksCreated int
	Documents     []DocumentResult
}

// Err joins the errors of every failed document.
func (r *Report) Err() error {
	var errs []error
	for _, d := range r.Documents {
		if d.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.FileName, d.Err))
		}
	}
	return errors.Join(errs...)
}

// Pipeline ingests documents into chunk storage.
type Pipeline struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	pool      *ants.Pool
	processor *chunkProcessor

	chunker     *chunker.Chunker
	keywords    *keywords.Extractor
	method      chunker.Method
	params      chunker.Params
	maxKeywords int
	writeDelay  time.Duration

	writeMu   sync.Mutex
	hashLocks keylock.Map
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of documents processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return errors.New("chunker cannot be nil")
		}
		p.chunker = c
		return nil
	}
}

// WithChunking sets the default chunking method and parameters.
func WithChunking(method chunker.Method, params chunker.Params) Option {
	return func(p *Pipeline) error {
		if err := params.Validate(method); err != nil {
			return err
		}
		p.method = method
		p.params = params
		return nil
	}
}

// WithKeywordExtractor replaces the default keyword extractor.
func WithKeywordExtractor(k *keywords.Extractor) Option {
	return func(p *Pipeline) error {
		if k == nil {
			return errors.New("keyword extractor cannot be nil")
		}
		p.keywords = k
		return nil
	}
}

// WithMaxKeywords sets the keyword ceiling per chunk. Default: 10.
func WithMaxKeywords(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("max keywords must be positive, got %d", n)
		}
		p.maxKeywords = n
		return nil
	}
}

// WithWriteDelay sets the pause held after each chunk write. Default: 10ms.
func WithWriteDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return errors.New("write delay cannot be negative")
		}
		p.writeDelay = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	summ *summarizer.Summarizer,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if summ == nil {
		return nil, ErrSummarizerRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents:   documents,
		chunks:      chunks,
		pool:        pool,
		method:      chunker.MethodToken,
		params:      chunker.DefaultParams(),
		maxKeywords: defaultMaxKeywords,
		writeDelay:  defaultWriteDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.chunker == nil {
		if p.chunker, err = chunker.New(chunker.WithLogger(p.logger)); err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.keywords == nil {
		if p.keywords, err = keywords.New(keywords.WithLogger(p.logger)); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	p.processor = newChunkProcessor(p.chunker, summ, p.keywords, p.maxKeywords, p.logger)
	return p, nil
}

// Ingest processes inputs concurrently and waits for all of them.
// Per-document failures are recorded in the report; the returned error is
// only set when work could not be scheduled.
func (p *Pipeline) Ingest(ctx context.Context, inputs ...DocumentInput) (*Report, error) {
	results := make([]DocumentResult, len(inputs))

	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			results[i] = p.ingestOne(ctx, inputs[i])
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("scheduling %s: %w", inputs[i].FileName, err)
		}
	}
	wg.Wait()

	report := &Report{Documents: results}
	for _, r := range results {
		switch {
		case r.Skipped():
			report.Skipped++
		case r.Err != nil:
			report.Failed++
		default:
			report.Processed++
			report.ChunksCreated += r.Chunks
		}
	}
	p.logger.Info("ingestion finished",
		"processed", report.Processed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"chunks", report.ChunksCreated)
	return report, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, in DocumentInput) DocumentResult {
	result := DocumentResult{FileName: in.FileName}

	ns, err := core.NewNamespace(in.TenantID, in.OwnerID)
	if err != nil {
		result.Status = core.DocumentFailed
		result.Err = err
		return result
	}
	hash := core.ContentHash(in.Text)

	// Same-hash documents of one owner are handled one at a time so a
	// duplicate inside one run is detected after the first one is stored.
	unlock := p.lockHash(in.OwnerID, hash)
	defer unlock()

	doc, err := p.documents.FindDocumentByHash(ctx, in.OwnerID, hash)
	switch {
	case err == nil && doc.Status == core.DocumentProcessed:
		p.logger.Info("skipping duplicate document", "file", in.FileName, "duplicate_of", doc.ID)
		result.DocumentID = doc.ID
		result.DuplicateOf = doc.ID
		result.Status = doc.Status
		return result
	case err == nil:
		p.logger.Info("re-running document", "document_id", doc.ID, "previous_status", doc.Status)
		if _, err := p.chunks.DeleteChunksByDocument(ctx, doc.ID); err != nil {
			result.Status = core.DocumentFailed
			result.Err = fmt.Errorf("clearing previous chunks: %w", err)
			return result
		}
		doc.Status = core.DocumentPending
		doc.Error = ""
		doc.ChunkCount = 0
		if doc, err = p.documents.UpdateDocument(ctx, doc); err != nil {
			result.Status = core.DocumentFailed
			result.Err = err
			return result
		}
	case errors.Is(err, storage.ErrNotFound):
		doc, err = p.documents.AddDocument(ctx, &core.Document{
			OwnerID:     in.OwnerID,
			TenantID:    in.TenantID,
			FileName:    in.FileName,
			FileType:    in.FileType,
			ContentHash: hash,
			Status:      core.DocumentPending,
			Namespace:   ns,
		})
		if err != nil {
			result.Status = core.DocumentFailed
			result.Err = fmt.Errorf("saving document: %w", err)
			return result
		}
	default:
		result.Status = core.DocumentFailed
		result.Err = fmt.Errorf("checking for duplicates: %w", err)
		return result
	}
	result.DocumentID = doc.ID

	method, params := p.method, p.params
	if in.Method != "" {
		method = in.Method
	}
	if in.Params != nil {
		params = *in.Params
	}
	doc.ChunkingMethod = string(method)

	built, err := p.processor.process(ctx, doc, in.Text, method, params)
	if err == nil {
		result.Method = built.method
		result.FellBack = built.fellBack
		result.DegradedSummaries = built.degraded
		doc.ChunkingMethod = string(built.method)
		err = p.saveChunks(ctx, built.chunks)
	}
	if err != nil {
		p.logger.Error("document processing failed", "document_id", doc.ID, "file", in.FileName, "err", err)
		result.Status = core.DocumentFailed
		result.Err = err
		p.finish(doc, core.DocumentFailed, 0, err)
		return result
	}

	result.Chunks = len(built.chunks)
	result.Status = core.DocumentProcessed
	if err := p.finish(doc, core.DocumentProcessed, len(built.chunks), nil); err != nil {
		result.Status = core.DocumentFailed
		result.Err = err
	}
	return result
}

// saveChunks writes chunks under the writer lock and holds it for the
// write delay.
func (p *Pipeline) saveChunks(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := core.ValidateChunk(c); err != nil {
			return err
		}
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.chunks.AddChunks(ctx, chunks...); err != nil {
		return fmt.Errorf("saving chunks: %w", err)
	}
	if p.writeDelay > 0 {
		time.Sleep(p.writeDelay)
	}
	return nil
}

// finish records the final document status. It uses a fresh context so a
// cancelled run still leaves the document in a re-runnable state.
func (p *Pipeline) finish(doc *core.Document, status core.DocumentStatus, chunks int, cause error) error {
	doc.Status = status
	doc.ChunkCount = chunks
	if cause != nil {
		doc.Error = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.documents.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("updating document status", "document_id", doc.ID, "status", status, "err", err)
		return err
	}
	return nil
}

func (p *Pipeline) lockHash(ownerID, hash string) func() {
	return p.hashLocks.Lock(ownerID + "\x00" + hash)
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
