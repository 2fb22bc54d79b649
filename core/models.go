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
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// NewID returns a new random identifier for documents, chunks and jobs.
func NewID() string {
	return uuid.NewString()
}

// ContentHash returns the hex encoded BLAKE2b-256 digest of text.
// Identical content always produces an identical hash, which is what
// document deduplication keys on.
func ContentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
	DocumentFailed    DocumentStatus = "failed"
)

// SummaryType records where a chunk summary came from.
type SummaryType string

const (
	// SummaryBasic is the summary produced at ingestion time, including
	// placeholder summaries written when the summarizer failed.
	SummaryBasic SummaryType = "basic"
	// SummaryAIEnhanced is a summary rewritten by a batch enhancement job.
	SummaryAIEnhanced SummaryType = "ai_enhanced"
)

// Namespace partitions vector index contents per tenant and owner.
type Namespace string

// NamespaceSeparator joins the tenant prefix and owner id.
const NamespaceSeparator = "|"

// NewNamespace builds the namespace key "{prefix}|{ownerID}".
func NewNamespace(prefix, ownerID string) (Namespace, error) {
	prefix = strings.TrimSpace(prefix)
	ownerID = strings.TrimSpace(ownerID)
	if prefix == "" || ownerID == "" {
		return "", ErrInvalidNamespace
	}
	if strings.Contains(prefix, NamespaceSeparator) {
		return "", ErrInvalidNamespace
	}
	return Namespace(prefix + NamespaceSeparator + ownerID), nil
}

// Parts splits the namespace back into tenant prefix and owner id.
func (n Namespace) Parts() (prefix, ownerID string) {
	prefix, ownerID, _ = strings.Cut(string(n), NamespaceSeparator)
	return prefix, ownerID
}

func (n Namespace) String() string {
	return string(n)
}

// Document is one uploaded file whose parsed text is being indexed.
type Document struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	TenantID       string         `json:"tenant_id"`
	FileName       string         `json:"file_name"`
	FileType       string         `json:"file_type"`
	ContentHash    string         `json:"content_hash"`
	Status         DocumentStatus `json:"status"`
	Namespace      Namespace      `json:"namespace"`
	ChunkingMethod string         `json:"chunking_method"`
	ChunkCount     int            `json:"chunk_count"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// VectorRef points at the vector stored for a chunk.
// A chunk has a VectorRef only after the vector store confirmed the write.
type VectorRef struct {
	Index      string    `json:"index"`
	VectorID   string    `json:"vector_id"`
	Model      string    `json:"model"`
	EmbeddedAt time.Time `json:"embedded_at"`
}

// Chunk is one retrievable unit of a document's text.
type Chunk struct {
	ID               string      `json:"id"`
	DocumentID       string      `json:"document_id"`
	OwnerID          string      `json:"owner_id"`
	TenantID         string      `json:"tenant_id"`
	Namespace        Namespace   `json:"namespace"`
	Index            int         `json:"index"`
	FileName         string      `json:"file_name"`
	Content          string      `json:"content"`
	Summary          string      `json:"summary"`
	SummaryType      SummaryType `json:"summary_type"`
	Keywords         []string    `json:"keywords,omitempty"`
	ChunkingMethod   string      `json:"chunking_method"`
	VectorRef        *VectorRef  `json:"vector_ref,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	EnhancedAt       *time.Time  `json:"enhanced_at,omitempty"`
	EnhancementJobID string      `json:"enhancement_job_id,omitempty"`
}

// Embedded reports whether the vector store has acknowledged this chunk.
func (c *Chunk) Embedded() bool {
	return c.VectorRef != nil
}

// StaleVector reports whether the chunk's summary changed after its vector
// was written, or it was embedded by a model other than model. Chunks
// without a vector are not stale; they are simply unembedded.
func (c *Chunk) StaleVector(model string) bool {
	if c.VectorRef == nil {
		return false
	}
	if model != "" && c.VectorRef.Model != model {
		return true
	}
	return c.EnhancedAt != nil && c.VectorRef.EmbeddedAt.Before(*c.EnhancedAt)
}

// EmbeddingText is the text sent to the embedding model for this chunk.
// The summary is prepended so the vector reflects the chunk's role in the
// whole document.
func (c *Chunk) EmbeddingText() string {
	if c.Summary == "" {
		return c.Content
	}
	return c.Summary + "\n\n" + c.Content
}

// RequestCounts is the per-status breakdown of requests in a remote batch.
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// EnhancementJob tracks one asynchronous batch summarization run.
type EnhancementJob struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	OwnerID       string        `json:"owner_id"`
	Namespace     Namespace     `json:"namespace"`
	RemoteJobID   string        `json:"remote_job_id,omitempty"`
	Status        JobStatus     `json:"status"`
	TotalRequests int           `json:"total_requests"`
	RequestCounts RequestCounts `json:"request_counts"`
	ChunkIDs      []string      `json:"chunk_ids,omitempty"`
	InputFileID   string        `json:"input_file_id,omitempty"`
	OutputFileID  string        `json:"output_file_id,omitempty"`
	ErrorFileID   string        `json:"error_file_id,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	RetryCount    int           `json:"retry_count"`
	UpdatedChunks int           `json:"updated_chunks"`
	Errors        int           `json:"errors"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	FailedAt      *time.Time    `json:"failed_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Checkpoint records how far a resumable pass has progressed.
type Checkpoint struct {
	ProcessorType string    `json:"processor_type"`
	LastID        string    `json:"last_id"`
	Processed     int       `json:"processed"`
	UpdatedAt     time.Time `json:"updated_at"`
}
