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

package core

import (
	"fmt"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - OwnerID must not be empty
//   - Namespace must not be empty
//   - ContentHash must not be empty
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingOwner)
	}
	if doc.Namespace == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidNamespace)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: content hash is empty", ErrInvalidDocument)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - DocumentID and OwnerID must not be empty
//   - Content must not be empty
//   - Namespace must not be empty
//   - Index must not be negative
//   - SummaryType must be basic or ai_enhanced
//
// NOT validated (populated later):
//   - VectorRef (nil until the vector store confirms the upsert)
//   - Keywords (may legitimately be empty)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidChunk)
	}
	if chunk.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingOwner)
	}
	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Namespace == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidNamespace)
	}
	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}
	if err := ValidateSummaryType(chunk.SummaryType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	return nil
}

// ValidateSummaryType validates that a SummaryType has a known value.
func ValidateSummaryType(t SummaryType) error {
	if t != SummaryBasic && t != SummaryAIEnhanced {
		return fmt.Errorf("%w: value %q", ErrInvalidSummaryType, t)
	}
	return nil
}

// ValidateJob validates an EnhancementJob before it is persisted.
func ValidateJob(job *EnhancementJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if job.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrMissingOwner)
	}
	if job.Namespace == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrInvalidNamespace)
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidJob, ErrUnknownJobStatus, job.Status)
	}
	return nil
}
