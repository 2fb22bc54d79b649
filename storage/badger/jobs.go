package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
// Non-terminal jobs are tracked in an active index so pollers never scan
// finished history.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) storage.JobRepository {
	return &JobRepository{backend: backend}
}

// Close releases resources. JobRepository has no resources to release.
func (r *JobRepository) Close() error {
	return nil
}

// AddJob stores a new job.
func (r *JobRepository) AddJob(ctx context.Context, job *core.EnhancementJob) (*core.EnhancementJob, error) {
	if job.ID == "" {
		job.ID = core.NewID()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	err := r.backend.Update(func(tx *badger.Txn) error {
		existing, err := getValue(tx, makeJobKey(job.ID))
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}
		if err := writeJob(tx, job, nil); err != nil {
			return err
		}
		return tx.Set(makeJobOwnerKey(job.OwnerID, job.CreatedAt, job.ID), []byte(job.ID))
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob replaces an existing job and maintains the active and remote indices.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.EnhancementJob) (*core.EnhancementJob, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		old, err := readJob(tx, makeJobKey(job.ID))
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		job.OwnerID = old.OwnerID
		job.CreatedAt = old.CreatedAt
		job.UpdatedAt = time.Now().UTC()
		return writeJob(tx, job, old)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.EnhancementJob, error) {
	var job *core.EnhancementJob
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return job, err
}

// GetJobByRemoteID looks up a job through the remote id index.
func (r *JobRepository) GetJobByRemoteID(ctx context.Context, remoteID string) (*core.EnhancementJob, error) {
	var job *core.EnhancementJob
	err := r.backend.View(func(tx *badger.Txn) error {
		id, err := getValue(tx, makeJobRemoteKey(remoteID))
		if err != nil {
			return err
		}
		if id == nil {
			return storage.ErrNotFound
		}
		job, err = readJob(tx, makeJobKey(string(id)))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return job, err
}

// ListActiveJobs returns jobs that have not reached a terminal status.
func (r *JobRepository) ListActiveJobs(ctx context.Context) ([]*core.EnhancementJob, error) {
	var jobs []*core.EnhancementJob
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(jobActivePrefix), nil, func(_, val []byte) error {
			job, err := readJob(tx, makeJobKey(string(val)))
			if err != nil {
				return err
			}
			if job != nil {
				jobs = append(jobs, job)
			}
			return nil
		})
	})
	return jobs, err
}

// ListJobs returns the owner's jobs in creation order.
func (r *JobRepository) ListJobs(ctx context.Context, ownerID string) ([]*core.EnhancementJob, error) {
	var jobs []*core.EnhancementJob
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialJobOwnerKey(ownerID), nil, func(_, val []byte) error {
			job, err := readJob(tx, makeJobKey(string(val)))
			if err != nil {
				return err
			}
			if job != nil {
				jobs = append(jobs, job)
			}
			return nil
		})
	})
	return jobs, err
}

// writeJob stores job and updates the secondary indices relative to old,
// which is nil for new jobs.
func writeJob(tx *badger.Txn, job, old *core.EnhancementJob) error {
	value, err := storage.MarshalJob(job)
	if err != nil {
		return err
	}
	if err := tx.Set(makeJobKey(job.ID), value); err != nil {
		return err
	}

	if job.Status.Terminal() {
		if err := tx.Delete(makeJobActiveKey(job.ID)); err != nil {
			return err
		}
	} else if err := tx.Set(makeJobActiveKey(job.ID), []byte(job.ID)); err != nil {
		return err
	}

	if old != nil && old.RemoteJobID != "" && old.RemoteJobID != job.RemoteJobID {
		if err := tx.Delete(makeJobRemoteKey(old.RemoteJobID)); err != nil {
			return err
		}
	}
	if job.RemoteJobID != "" {
		return tx.Set(makeJobRemoteKey(job.RemoteJobID), []byte(job.ID))
	}
	return nil
}

// readJob returns nil, nil if key doesn't exist.
func readJob(tx *badger.Txn, key []byte) (*core.EnhancementJob, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalJob(val)
}
