package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
)

// Metric is the similarity function of an index.
type Metric string

// MetricCosine ranks by cosine similarity.
const MetricCosine Metric = "cosine"

// PreviewRunes bounds the content and summary previews stored with vectors.
const PreviewRunes = 200

// IndexName returns the physical index name for a provider and dimension.
// Models with incompatible dimensions therefore never share an index.
func IndexName(provider ai.Provider, dimension int) string {
	return fmt.Sprintf("%s-%d", provider, dimension)
}

// ParseHandle rebuilds the handle of a name produced by IndexName, such
// as the Index recorded in a chunk's vector reference.
func ParseHandle(name string) (Handle, error) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, name)
	}
	provider, err := ai.ParseProvider(name[:i])
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %q: %w", ErrInvalidHandle, name, err)
	}
	dimension, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, name)
	}
	h := Handle{Name: name, Provider: provider, Dimension: dimension}
	if !h.Valid() {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, name)
	}
	return h, nil
}

// Handle addresses an index known to exist.
type Handle struct {
	Name      string
	Provider  ai.Provider
	Dimension int
}

// Valid reports whether h was produced for a real provider and dimension.
func (h Handle) Valid() bool {
	return h.Provider.Valid() && h.Dimension > 0 && h.Name == IndexName(h.Provider, h.Dimension)
}

// IndexInfo describes an existing index.
type IndexInfo struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Metadata is stored alongside every vector.
type Metadata struct {
	OwnerID        string    `json:"owner_id"`
	DocumentID     string    `json:"document_id"`
	ChunkIndex     int       `json:"chunk_index"`
	FileName       string    `json:"file_name"`
	ContentPreview string    `json:"content_preview"`
	SummaryPreview string    `json:"summary_preview"`
	ChunkingMethod string    `json:"chunking_method"`
	CreatedAt      time.Time `json:"created_at"`
}

// Vector is one upsert record. ID is the chunk id.
type Vector struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// FromChunk builds the upsert record for c.
func FromChunk(c *core.Chunk, values []float32) Vector {
	return Vector{
		ID:     c.ID,
		Values: values,
		Metadata: Metadata{
			OwnerID:        c.OwnerID,
			DocumentID:     c.DocumentID,
			ChunkIndex:     c.Index,
			FileName:       c.FileName,
			ContentPreview: preview(c.Content),
			SummaryPreview: preview(c.Summary),
			ChunkingMethod: c.ChunkingMethod,
			CreatedAt:      c.CreatedAt,
		},
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewRunes {
		return s
	}
	return string([]rune(s)[:PreviewRunes])
}

// Match is one query result.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// UpsertResult reports the outcome of one store upsert call. Ids in
// Succeeded were acknowledged by the store; Failed maps the remaining
// ids to their errors.
type UpsertResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Store is a physical vector database. Indexes are partitioned by
// namespace; every read and write addresses exactly one namespace.
type Store interface {
	// DescribeIndex returns ErrIndexNotFound when name does not exist.
	DescribeIndex(ctx context.Context, name string) (IndexInfo, error)

	// CreateIndex returns ErrIndexExists when name already exists.
	CreateIndex(ctx context.Context, name string, dimension int, metric Metric) error

	// Upsert writes vectors, overwriting existing ids. A returned error
	// means nothing in the call can be considered written.
	Upsert(ctx context.Context, index string, namespace core.Namespace, vectors []Vector) (UpsertResult, error)

	// Query returns up to topK nearest vectors in namespace.
	Query(ctx context.Context, index string, namespace core.Namespace, vector []float32, topK int) ([]Match, error)

	// Delete removes ids from namespace. Missing ids are ignored.
	Delete(ctx context.Context, index string, namespace core.Namespace, ids []string) error
}
