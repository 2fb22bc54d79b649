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

package badger

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/vectorindex"
)

// VectorStore implements vectorindex.Store on the same BadgerDB backend as
// the repositories. Queries are exhaustive cosine scans of one namespace,
// which suits single-node deployments and tests.
type VectorStore struct {
	backend *Backend
}

var _ vectorindex.Store = (*VectorStore)(nil)

type storedVector struct {
	Values   []float32            `json:"values"`
	Metadata vectorindex.Metadata `json:"metadata"`
}

// NewVectorStore creates a VectorStore.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{backend: backend}
}

// DescribeIndex implements vectorindex.Store.
func (s *VectorStore) DescribeIndex(ctx context.Context, name string) (vectorindex.IndexInfo, error) {
	var info vectorindex.IndexInfo
	err := s.backend.View(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeVectorIndexKey(name))
		if err != nil {
			return err
		}
		if val == nil {
			return vectorindex.ErrIndexNotFound
		}
		return json.Unmarshal(val, &info)
	})
	return info, err
}

// CreateIndex implements vectorindex.Store.
func (s *VectorStore) CreateIndex(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	value, err := json.Marshal(vectorindex.IndexInfo{Name: name, Dimension: dimension, Metric: metric})
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return s.backend.Update(func(tx *badger.Txn) error {
		existing, err := getValue(tx, makeVectorIndexKey(name))
		if err != nil {
			return err
		}
		if existing != nil {
			return vectorindex.ErrIndexExists
		}
		return tx.Set(makeVectorIndexKey(name), value)
	})
}

// Upsert implements vectorindex.Store. All vectors are written in one
// transaction, so either every id succeeds or the call fails.
func (s *VectorStore) Upsert(ctx context.Context, index string, ns core.Namespace, vectors []vectorindex.Vector) (vectorindex.UpsertResult, error) {
	res := vectorindex.UpsertResult{Failed: make(map[string]error)}
	err := s.backend.Update(func(tx *badger.Txn) error {
		res.Succeeded = res.Succeeded[:0]
		for _, v := range vectors {
			value, err := json.Marshal(storedVector{Values: v.Values, Metadata: v.Metadata})
			if err != nil {
				res.Failed[v.ID] = err
				continue
			}
			if err := tx.Set(makeVectorKey(index, ns, v.ID), value); err != nil {
				return err
			}
			res.Succeeded = append(res.Succeeded, v.ID)
		}
		return nil
	})
	if err != nil {
		return vectorindex.UpsertResult{}, err
	}
	return res, nil
}

// Query implements vectorindex.Store with an exhaustive scan.
func (s *VectorStore) Query(ctx context.Context, index string, ns core.Namespace, vector []float32, topK int) ([]vectorindex.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	prefix := makePartialVectorKey(index, ns)
	var matches []vectorindex.Match
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, prefix, nil, func(key, val []byte) error {
			var sv storedVector
			if err := json.Unmarshal(val, &sv); err != nil {
				return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
			matches = append(matches, vectorindex.Match{
				ID:       string(key[len(prefix):]),
				Score:    ai.CosineSimilarity(vector, sv.Values),
				Metadata: sv.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b vectorindex.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements vectorindex.Store.
func (s *VectorStore) Delete(ctx context.Context, index string, ns core.Namespace, ids []string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(index, ns, id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of vectors stored in a namespace of an index.
func (s *VectorStore) Count(ctx context.Context, index string, ns core.Namespace) (int, error) {
	n := 0
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanKeys(tx, makePartialVectorKey(index, ns), func([]byte) error {
			n++
			return nil
		})
	})
	return n, err
}
