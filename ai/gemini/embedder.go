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

package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/ragline/ai"
	"google.golang.org/api/option"
)

// Embedder implements ai.Embedder using Gemini embedding models.
type Embedder struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var (
	_ ai.Embedder      = (*Embedder)(nil)
	_ ai.QueryEmbedder = (*Embedder)(nil)
)

func newClient(ctx context.Context, config *ai.Config) (*genai.Client, error) {
	if config.GoogleAPIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ai.ErrMissingCredentials)
	}
	return genai.NewClient(ctx, option.WithAPIKey(config.GoogleAPIKey))
}

// NewEmbedder creates an embedder for the named Gemini embedding model.
// The caller owns the returned embedder and must Close it.
func NewEmbedder(ctx context.Context, config *ai.Config, model string) (*Embedder, error) {
	client, err := newClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "gemini-embedder", "model", model),
	}, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts batches all texts in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, ai.ErrEmptyResponse
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		out = append(out, emb.Values)
	}
	return out, nil
}

// EmbedQuery embeds a search query with the retrieval query task type.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed query: %w", err)
	}
	if resp.Embedding == nil {
		return nil, ai.ErrEmptyResponse
	}
	return resp.Embedding.Values, nil
}
