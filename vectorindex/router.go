// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vectorindex routes vectors to physical indexes and performs
// namespaced upserts.
//
// The index for a vector is a pure function of the embedding provider and
// dimension ("{provider}-{dimension}"). Upserts are split into independent
// batches and only ids the store acknowledged are returned; callers mark
// chunks as embedded from that set alone.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
)

const defaultBatchSize = 100

// Router selects indexes and writes vectors through a Store.
// It is safe for concurrent use.
type Router struct {
	store     Store
	batchSize int
	logger    *slog.Logger

	mu    sync.Mutex
	known map[string]Handle
}

// Option configures a Router.
type Option func(*Router) error

// WithBatchSize sets the maximum vectors per store call. Default: 100.
func WithBatchSize(n int) Option {
	return func(r *Router) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		r.batchSize = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		r.logger = logger
		return nil
	}
}

// NewRouter creates a Router over store.
func NewRouter(store Store, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	r := &Router{
		store:     store,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		known:     make(map[string]Handle),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "vector-router")
	return r, nil
}

// EnsureIndex returns a handle to the index for provider and dimension,
// creating it with the cosine metric if absent. Concurrent creators are
// tolerated. An existing index with another dimension is an error.
func (r *Router) EnsureIndex(ctx context.Context, provider ai.Provider, dimension int) (Handle, error) {
	if !provider.Valid() {
		return Handle{}, fmt.Errorf("%w: %v", ai.ErrUnknownProvider, provider)
	}
	if dimension <= 0 {
		return Handle{}, fmt.Errorf("%w: dimension %d", ErrInvalidHandle, dimension)
	}

	name := IndexName(provider, dimension)
	r.mu.Lock()
	h, ok := r.known[name]
	r.mu.Unlock()
	if ok {
		return h, nil
	}

	info, err := r.store.DescribeIndex(ctx, name)
	switch {
	case errors.Is(err, ErrIndexNotFound):
		r.logger.Info("creating vector index", "index", name, "dimension", dimension, "metric", MetricCosine)
		err = r.store.CreateIndex(ctx, name, dimension, MetricCosine)
		if errors.Is(err, ErrIndexExists) {
			r.logger.Debug("index created concurrently", "index", name)
			err = nil
		}
		if err != nil {
			return Handle{}, fmt.Errorf("creating index %s: %w", name, err)
		}
		if info, err = r.store.DescribeIndex(ctx, name); err != nil {
			return Handle{}, fmt.Errorf("describing index %s: %w", name, err)
		}
	case err != nil:
		return Handle{}, fmt.Errorf("describing index %s: %w", name, err)
	}

	if info.Dimension != dimension {
		return Handle{}, fmt.Errorf("%w: index %s has dimension %d, want %d", ErrDimensionMismatch, name, info.Dimension, dimension)
	}

	h = Handle{Name: name, Provider: provider, Dimension: dimension}
	r.mu.Lock()
	r.known[name] = h
	r.mu.Unlock()
	return h, nil
}

// Upsert writes vectors into namespace of the handle's index in batches.
// Each batch is independent: a failed batch is logged and skipped. The
// returned ids are exactly those the store confirmed, in input order.
// Vectors whose length does not match the index are never sent.
func (r *Router) Upsert(ctx context.Context, vectors []Vector, namespace core.Namespace, h Handle) ([]string, error) {
	if namespace == "" {
		return nil, core.ErrInvalidNamespace
	}
	if !h.Valid() {
		return nil, ErrInvalidHandle
	}

	valid := make([]Vector, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Values) != h.Dimension {
			r.logger.Warn("skipping vector with wrong dimension", "id", v.ID, "got", len(v.Values), "want", h.Dimension)
			continue
		}
		valid = append(valid, v)
	}

	confirmed := make(map[string]bool, len(valid))
	for start := 0; start < len(valid); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return orderedIDs(valid, confirmed), err
		}
		end := min(start+r.batchSize, len(valid))
		batch := valid[start:end]

		res, err := r.store.Upsert(ctx, h.Name, namespace, batch)
		if err != nil {
			r.logger.Error("upsert batch failed", "index", h.Name, "namespace", namespace, "batch_start", start, "size", len(batch), "err", err)
			continue
		}
		for _, id := range res.Succeeded {
			confirmed[id] = true
		}
		for id, ferr := range res.Failed {
			r.logger.Warn("vector not written", "index", h.Name, "namespace", namespace, "id", id, "err", ferr)
		}
	}

	ids := orderedIDs(valid, confirmed)
	r.logger.Debug("upsert finished", "index", h.Name, "namespace", namespace, "requested", len(vectors), "confirmed", len(ids))
	return ids, nil
}

func orderedIDs(vectors []Vector, confirmed map[string]bool) []string {
	ids := make([]string, 0, len(confirmed))
	seen := make(map[string]bool, len(confirmed))
	for _, v := range vectors {
		if confirmed[v.ID] && !seen[v.ID] {
			ids = append(ids, v.ID)
			seen[v.ID] = true
		}
	}
	return ids
}

// Query searches namespace of the handle's index.
func (r *Router) Query(ctx context.Context, h Handle, namespace core.Namespace, vector []float32, topK int) ([]Match, error) {
	if namespace == "" {
		return nil, core.ErrInvalidNamespace
	}
	if !h.Valid() {
		return nil, ErrInvalidHandle
	}
	if len(vector) != h.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, index %s has %d", ErrDimensionMismatch, len(vector), h.Name, h.Dimension)
	}
	return r.store.Query(ctx, h.Name, namespace, vector, topK)
}

// Delete removes ids from namespace of the handle's index.
func (r *Router) Delete(ctx context.Context, h Handle, namespace core.Namespace, ids []string) error {
	if namespace == "" {
		return core.ErrInvalidNamespace
	}
	if !h.Valid() {
		return ErrInvalidHandle
	}
	if len(ids) == 0 {
		return nil
	}
	return r.store.Delete(ctx, h.Name, namespace, ids)
}
