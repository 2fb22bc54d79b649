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

// Package storage provides the storage abstraction layer for ragline.
//
// This package defines repository interfaces that decouple storage implementation
// from the pipeline. Documents, chunks and enhancement jobs each have their own
// repository; records are serialized as JSON.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return the repository interfaces
// defined here:
//
//	docs, err := badger.NewDocumentRepository(backend)  // returns storage.DocumentRepository
//
// Internal helpers may return concrete types since they're only used within
// the implementation package.
//
// # Architecture
//
//   - DocumentRepository: uploaded documents, deduplicated per owner by content hash
//   - ChunkRepository: chunks, including the unembedded and summary-type views
//     the index stage and the enhancement manager read from
//   - JobRepository: enhancement jobs and the active job view
//   - TransactionManager: transaction support
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
