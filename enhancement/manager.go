package enhancement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/keylock"
	"github.com/poiesic/ragline/objectstore"
	"github.com/poiesic/ragline/storage"
)

const (
	defaultModel           = "gpt-4o-mini"
	defaultMaxContentRunes = 6000
	defaultMaxTokens       = 200
)

// SubmitRequest selects the chunks of one tenant and owner for enhancement.
// Namespace is derived from TenantID and OwnerID when empty.
type SubmitRequest struct {
	TenantID  string
	OwnerID   string
	Namespace core.Namespace
}

// CompletionReport describes how a completed batch was applied.
type CompletionReport struct {
	JobID         string
	UpdatedChunks int
	Errors        int
	Failures      []error
}

// Manager submits enhancement batches and applies their status reports.
// It is safe for concurrent use. Status changes of one job are serialized;
// output downloads run outside the job lock.
type Manager struct {
	chunks    storage.ChunkRepository
	jobs      storage.JobRepository
	client    BatchClient
	artifacts objectstore.Store
	notifier  Notifier

	model           string
	maxContentRunes int
	maxTokens       int

	logger *slog.Logger
	locks  keylock.Map

	// completing holds the ids of jobs whose output is being fetched.
	completing sync.Map
}

// Option configures a Manager.
type Option func(*Manager) error

// WithArtifactStore archives batch input and output files in store.
func WithArtifactStore(store objectstore.Store) Option {
	return func(m *Manager) error {
		m.artifacts = store
		return nil
	}
}

// WithNotifier replaces the default LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		m.notifier = n
		return nil
	}
}

// WithModel sets the chat model named in every batch request.
func WithModel(model string) Option {
	return func(m *Manager) error {
		if model == "" {
			return errors.New("model cannot be empty")
		}
		m.model = model
		return nil
	}
}

// WithMaxContentRunes bounds the chunk content included in each request.
func WithMaxContentRunes(n int) Option {
	return func(m *Manager) error {
		if n <= 0 {
			return errors.New("max content runes must be positive")
		}
		m.maxContentRunes = n
		return nil
	}
}

// WithMaxTokens bounds the length of each generated summary.
func WithMaxTokens(n int) Option {
	return func(m *Manager) error {
		if n < 0 {
			return errors.New("max tokens cannot be negative")
		}
		m.maxTokens = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		m.logger = logger
		return nil
	}
}

// NewManager creates a Manager over the given repositories and batch client.
func NewManager(chunks storage.ChunkRepository, jobs storage.JobRepository, client BatchClient, opts ...Option) (*Manager, error) {
	if chunks == nil || jobs == nil {
		return nil, errors.New("chunk and job repositories are required")
	}
	if client == nil {
		return nil, errors.New("batch client is required")
	}
	m := &Manager{
		chunks:          chunks,
		jobs:            jobs,
		client:          client,
		model:           defaultModel,
		maxContentRunes: defaultMaxContentRunes,
		maxTokens:       defaultMaxTokens,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "enhancement")
	if m.notifier == nil {
		m.notifier = NewLogNotifier(m.logger)
	}
	return m, nil
}

// Submit starts one remote batch over every basic-summary chunk of the
// request's namespace and records it as a submitted job.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*core.EnhancementJob, error) {
	ns := req.Namespace
	if ns == "" {
		var err error
		ns, err = core.NewNamespace(req.TenantID, req.OwnerID)
		if err != nil {
			return nil, err
		}
	}

	chunks, err := m.chunks.GetChunksBySummaryType(ctx, ns, core.SummaryBasic, 0)
	if err != nil {
		return nil, fmt.Errorf("selecting chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in namespace %s", ErrNothingToEnhance, ns)
	}

	payload, err := BuildRequests(chunks, m.model, m.maxContentRunes, m.maxTokens)
	if err != nil {
		return nil, err
	}

	job := &core.EnhancementJob{
		ID:            core.NewID(),
		TenantID:      req.TenantID,
		OwnerID:       req.OwnerID,
		Namespace:     ns,
		Status:        core.JobSubmitted,
		TotalRequests: len(chunks),
		ChunkIDs:      make([]string, len(chunks)),
	}
	if job.OwnerID == "" || job.TenantID == "" {
		job.TenantID, job.OwnerID = ns.Parts()
	}
	for i, c := range chunks {
		job.ChunkIDs[i] = c.ID
	}
	if err := core.ValidateJob(job); err != nil {
		return nil, err
	}

	if err := m.archive(ctx, job.ID, "input.jsonl", payload); err != nil {
		return nil, fmt.Errorf("archiving batch input: %w", err)
	}

	fileID, err := m.client.UploadFile(ctx, "enhancement-"+job.ID+".jsonl", payload)
	if err != nil {
		return nil, fmt.Errorf("uploading batch input: %w", err)
	}
	remoteID, err := m.client.CreateBatch(ctx, fileID, map[string]string{
		"job_id":    job.ID,
		"namespace": ns.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}
	job.InputFileID = fileID
	job.RemoteJobID = remoteID
	job.RequestCounts.Total = len(chunks)

	if _, err := m.jobs.AddJob(ctx, job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}

	if _, err := m.chunks.PatchChunks(ctx, job.ChunkIDs, func(c *core.Chunk) {
		c.EnhancementJobID = job.ID
	}); err != nil {
		return nil, fmt.Errorf("linking chunks to job %s: %w", job.ID, err)
	}

	m.logger.Info("enhancement job submitted",
		"job_id", job.ID,
		"remote_job_id", remoteID,
		"namespace", ns,
		"chunks", len(chunks))
	m.notify(ctx, job, EventStarted, "")
	return job, nil
}

// Poll fetches the remote status of a job and applies it.
// Terminal jobs are returned unchanged.
func (m *Manager) Poll(ctx context.Context, jobID string) (*core.EnhancementJob, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	report, err := m.client.GetBatch(ctx, job.RemoteJobID)
	if err != nil {
		return nil, fmt.Errorf("fetching batch %s: %w", job.RemoteJobID, err)
	}
	return m.Apply(ctx, jobID, report)
}

// PollActive polls every job that has not reached a terminal status.
// Errors for individual jobs are joined; the remaining jobs are still polled.
func (m *Manager) PollActive(ctx context.Context) ([]*core.EnhancementJob, error) {
	active, err := m.jobs.ListActiveJobs(ctx)
	if err != nil {
		return nil, err
	}
	var (
		updated []*core.EnhancementJob
		errs    []error
	)
	for _, job := range active {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		polled, err := m.Poll(ctx, job.ID)
		if err != nil {
			m.logger.Warn("poll failed", "job_id", job.ID, "error", err)
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		updated = append(updated, polled)
	}
	return updated, errors.Join(errs...)
}

// Apply records a status report for a job. Reports that would move the job
// backward, or arrive after it reached a terminal status, are ignored.
// A completed report applies the batch output before the job is marked
// completed; if that fails the job is marked failed instead.
func (m *Manager) Apply(ctx context.Context, jobID string, report StatusReport) (*core.EnhancementJob, error) {
	status, err := core.ParseJobStatus(report.Status)
	if err != nil {
		return nil, err
	}
	if status == core.JobCompleted {
		return m.applyCompleted(ctx, jobID, report)
	}

	unlock := m.lock(jobID)
	defer unlock()

	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if done, err := m.settled(ctx, job, status, report); done {
		return job, err
	}
	recordReport(job, report)
	now := time.Now().UTC()

	if status.Failure() {
		msg := report.Error
		if msg == "" {
			msg = "batch " + string(status)
		}
		return m.fail(ctx, job, status, msg, now)
	}
	if err := core.TransitionJob(job, status); err != nil {
		return nil, err
	}
	if status != core.JobValidating && job.StartedAt == nil {
		job.StartedAt = &now
	}
	return m.jobs.UpdateJob(ctx, job)
}

// applyCompleted claims the job, fetches the output without holding the
// job lock, then applies it under the lock. Completed reports that arrive
// while a claim is held are ignored.
func (m *Manager) applyCompleted(ctx context.Context, jobID string, report StatusReport) (*core.EnhancementJob, error) {
	unlock := m.lock(jobID)
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		unlock()
		return nil, err
	}
	if done, err := m.settled(ctx, job, core.JobCompleted, report); done {
		unlock()
		return job, err
	}
	if _, busy := m.completing.LoadOrStore(jobID, struct{}{}); busy {
		unlock()
		m.logger.Debug("completion already in progress", "job_id", jobID)
		return job, nil
	}
	defer m.completing.Delete(jobID)
	outputID := report.OutputFileID
	if outputID == "" {
		outputID = job.OutputFileID
	}
	unlock()

	data, fetchErr := m.fetchOutput(ctx, jobID, outputID)

	unlock = m.lock(jobID)
	defer unlock()

	job, err = m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if done, err := m.settled(ctx, job, core.JobCompleted, report); done {
		return job, err
	}
	recordReport(job, report)
	now := time.Now().UTC()

	if fetchErr != nil {
		m.logger.Error("fetching batch output failed", "job_id", job.ID, "error", fetchErr)
		return m.fail(ctx, job, core.JobFailed, fetchErr.Error(), now)
	}
	result, err := m.complete(ctx, job, data)
	if err != nil {
		m.logger.Error("applying batch output failed", "job_id", job.ID, "error", err)
		return m.fail(ctx, job, core.JobFailed, err.Error(), now)
	}
	if err := core.TransitionJob(job, core.JobCompleted); err != nil {
		return nil, err
	}
	job.CompletedAt = &now
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.UpdatedChunks = result.UpdatedChunks
	job.Errors = result.Errors
	if _, err := m.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info("enhancement job completed",
		"job_id", job.ID,
		"updated_chunks", result.UpdatedChunks,
		"errors", result.Errors)
	m.notify(ctx, job, EventCompleted, "")
	return job, nil
}

// settled reports whether report leaves job where it is. A report for the
// current status only refreshes the request counts.
func (m *Manager) settled(ctx context.Context, job *core.EnhancementJob, status core.JobStatus, report StatusReport) (bool, error) {
	if status == job.Status {
		if job.Status.Terminal() || report.RequestCounts == job.RequestCounts {
			return true, nil
		}
		job.RequestCounts = report.RequestCounts
		_, err := m.jobs.UpdateJob(ctx, job)
		return true, err
	}
	if !core.CanTransition(job.Status, status) {
		m.logger.Debug("ignoring stale status report",
			"job_id", job.ID,
			"current", job.Status,
			"reported", status)
		return true, nil
	}
	return false, nil
}

func recordReport(job *core.EnhancementJob, report StatusReport) {
	if report.RequestCounts.Total > 0 {
		job.RequestCounts = report.RequestCounts
	}
	if report.OutputFileID != "" {
		job.OutputFileID = report.OutputFileID
	}
	if report.ErrorFileID != "" {
		job.ErrorFileID = report.ErrorFileID
	}
}

// fail moves job to a failure status. Chunk data is not touched.
func (m *Manager) fail(ctx context.Context, job *core.EnhancementJob, status core.JobStatus, msg string, at time.Time) (*core.EnhancementJob, error) {
	if err := core.TransitionJob(job, status); err != nil {
		return nil, err
	}
	job.ErrorMessage = msg
	job.FailedAt = &at
	if _, err := m.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Warn("enhancement job failed", "job_id", job.ID, "status", status, "error", msg)
	m.notify(ctx, job, EventFailed, msg)
	return job, nil
}

// fetchOutput downloads the output artifact and archives a copy.
func (m *Manager) fetchOutput(ctx context.Context, jobID, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, ErrNoOutputFile
	}
	rc, err := m.client.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("downloading output %s: %w", fileID, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("reading output %s: %w", fileID, err)
	}
	if err := m.archive(ctx, jobID, "output.jsonl", data); err != nil {
		m.logger.Warn("archiving batch output failed", "job_id", jobID, "error", err)
	}
	return data, nil
}

// complete writes each usable summary in data back to its chunk.
// Unusable lines are counted, not fatal. Only the summary fields are
// written so concurrent vector bookkeeping on the same chunks survives.
func (m *Manager) complete(ctx context.Context, job *core.EnhancementJob, data []byte) (*CompletionReport, error) {
	results, err := ParseResults(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing output %s: %w", job.OutputFileID, err)
	}

	report := &CompletionReport{JobID: job.ID}
	failed := func(err error) {
		report.Errors++
		report.Failures = append(report.Failures, err)
	}

	ids := make([]string, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			ids = append(ids, res.ChunkID)
		}
	}
	existing, err := m.chunks.GetChunks(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	byID := make(map[string]*core.Chunk, len(existing))
	for _, c := range existing {
		byID[c.ID] = c
	}

	summaries := make(map[string]string, len(results))
	var accepted []string
	for _, res := range results {
		if res.Err != nil {
			failed(res.Err)
			continue
		}
		chunk, ok := byID[res.ChunkID]
		if !ok {
			failed(fmt.Errorf("%w: chunk %s: %w", ErrMalformedResult, res.ChunkID, storage.ErrNotFound))
			continue
		}
		if chunk.Namespace != job.Namespace {
			failed(fmt.Errorf("%w: chunk %s is outside namespace %s", ErrMalformedResult, res.ChunkID, job.Namespace))
			continue
		}
		if _, seen := summaries[chunk.ID]; !seen {
			accepted = append(accepted, chunk.ID)
		}
		summaries[chunk.ID] = res.Summary
	}

	now := time.Now().UTC()
	n, err := m.chunks.PatchChunks(ctx, accepted, func(c *core.Chunk) {
		c.Summary = summaries[c.ID]
		c.SummaryType = core.SummaryAIEnhanced
		c.EnhancedAt = &now
		c.EnhancementJobID = job.ID
	})
	if err != nil {
		return nil, fmt.Errorf("saving enhanced chunks: %w", err)
	}
	report.UpdatedChunks = n
	return report, nil
}

func (m *Manager) archive(ctx context.Context, jobID, name string, data []byte) error {
	if m.artifacts == nil {
		return nil
	}
	_, err := m.artifacts.Put(ctx, objectstore.JobArtifactKey(jobID, name), "application/jsonl", bytes.NewReader(data))
	return err
}

func (m *Manager) notify(ctx context.Context, job *core.EnhancementJob, kind EventKind, msg string) {
	event := Event{
		Kind:          kind,
		JobID:         job.ID,
		OwnerID:       job.OwnerID,
		TenantID:      job.TenantID,
		TotalRequests: job.TotalRequests,
		UpdatedChunks: job.UpdatedChunks,
		Errors:        job.Errors,
		Message:       msg,
		At:            time.Now().UTC(),
	}
	if err := m.notifier.Notify(ctx, event); err != nil {
		m.logger.Warn("notification failed", "job_id", job.ID, "kind", kind, "error", err)
	}
}

func (m *Manager) lock(jobID string) func() {
	return m.locks.Lock(jobID)
}
