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
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) storage.DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close releases resources. DocumentRepository has no resources to release.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument stores a new document.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.ID == "" {
		doc.ID = core.NewID()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}

	err = r.backend.Update(func(tx *badger.Txn) error {
		hashKey := makeDocumentHashKey(doc.OwnerID, doc.ContentHash)
		existing, err := getValue(tx, hashKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}
		if err := tx.Set(makeDocumentKey(doc.ID), value); err != nil {
			return err
		}
		if err := tx.Set(hashKey, []byte(doc.ID)); err != nil {
			return err
		}
		return tx.Set(makeDocumentOwnerKey(doc.OwnerID, doc.CreatedAt, doc.ID), []byte(doc.ID))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument replaces an existing document.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		old, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		doc.OwnerID = old.OwnerID
		doc.ContentHash = old.ContentHash
		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = time.Now().UTC()

		value, err := storage.MarshalDocument(doc)
		if err != nil {
			return err
		}
		return tx.Set(key, value)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return doc, err
}

// FindDocumentByHash looks up the owner's document through the hash index.
func (r *DocumentRepository) FindDocumentByHash(ctx context.Context, ownerID, contentHash string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		id, err := getValue(tx, makeDocumentHashKey(ownerID, contentHash))
		if err != nil {
			return err
		}
		if id == nil {
			return storage.ErrNotFound
		}
		doc, err = readDocument(tx, makeDocumentKey(string(id)))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return doc, err
}

// ListDocuments returns the owner's documents in creation order.
func (r *DocumentRepository) ListDocuments(ctx context.Context, ownerID string) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialDocumentOwnerKey(ownerID), nil, func(_, val []byte) error {
			doc, err := readDocument(tx, makeDocumentKey(string(val)))
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	return docs, err
}

// DeleteDocument removes a document and its indices. Chunks are left to
// the chunk repository.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeDocumentHashKey(doc.OwnerID, doc.ContentHash)); err != nil {
			return err
		}
		if err := tx.Delete(makeDocumentOwnerKey(doc.OwnerID, doc.CreatedAt, doc.ID)); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// readDocument returns nil, nil if key doesn't exist.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalDocument(val)
}
