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

// Package local implements an in-process embedding model.
//
// The model follows the e5 input convention: passages are prefixed with
// "passage: " and queries with "query: ". Text is tokenized, each token is
// mapped to a vector by a TokenEncoder, and the token vectors are mean
// pooled and L2 normalized to a fixed dimension. No network access is
// required when the word tokenizer is used.
package local

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/tokenize"
)

const (
	// PassagePrefix is prepended to texts embedded for storage.
	PassagePrefix = "passage: "
	// QueryPrefix is prepended to texts embedded for search.
	QueryPrefix = "query: "

	defaultMaxTokens = 512
)

// ErrInvalidDimension is returned when the model dimension is not positive.
var ErrInvalidDimension = errors.New("embedding dimension must be positive")

// TokenEncoder maps a token sequence to one vector per token. Tokens are
// passed as their decoded text so vectors do not depend on vocabulary
// assignment order.
type TokenEncoder interface {
	EncodeTokens(tokens []string, dim int) [][]float32
}

// Embedder implements ai.Embedder and ai.QueryEmbedder in-process.
type Embedder struct {
	model     string
	dim       int
	maxTokens int
	tokenizer tokenize.Tokenizer
	encoder   TokenEncoder
	logger    *slog.Logger
}

var (
	_ ai.Embedder      = (*Embedder)(nil)
	_ ai.QueryEmbedder = (*Embedder)(nil)
)

// Option configures an Embedder.
type Option func(*Embedder) error

// WithTokenizer sets the tokenizer. Default: tokenize.NewWord().
func WithTokenizer(t tokenize.Tokenizer) Option {
	return func(e *Embedder) error {
		e.tokenizer = t
		return nil
	}
}

// WithTokenEncoder replaces the token vector encoder.
func WithTokenEncoder(enc TokenEncoder) Option {
	return func(e *Embedder) error {
		e.encoder = enc
		return nil
	}
}

// WithMaxTokens truncates inputs to n tokens. Default: 512.
func WithMaxTokens(n int) Option {
	return func(e *Embedder) error {
		if n <= 0 {
			return errors.New("max tokens must be positive")
		}
		e.maxTokens = n
		return nil
	}
}

// NewEmbedder creates a local embedder producing dim-sized vectors.
func NewEmbedder(model string, dim int, opts ...Option) (*Embedder, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	e := &Embedder{
		model:     model,
		dim:       dim,
		maxTokens: defaultMaxTokens,
		encoder:   HashingEncoder{},
		logger:    slog.Default().With("component", "local-embedder", "model", model),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.tokenizer == nil {
		e.tokenizer = tokenize.NewWord()
	}
	return e, nil
}

// EmbedText embeds a passage.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(PassagePrefix + text), nil
}

// EmbedTexts embeds passages in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(PassagePrefix + text)
	}
	e.logger.Debug("embedded texts", "count", len(texts))
	return out, nil
}

// EmbedQuery embeds a search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(QueryPrefix + text), nil
}

func (e *Embedder) embed(text string) []float32 {
	ids := e.tokenizer.Encode(text)
	if len(ids) > e.maxTokens {
		ids = ids[:e.maxTokens]
	}
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = e.tokenizer.Decode([]int{id})
	}
	return MeanPool(e.encoder.EncodeTokens(tokens, e.dim), e.dim)
}

// MeanPool averages token vectors and L2 normalizes the result.
// An empty input yields the zero vector.
func MeanPool(vectors [][]float32, dim int) []float32 {
	pooled := make([]float32, dim)
	if len(vectors) == 0 {
		return pooled
	}
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			pooled[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range pooled {
		pooled[i] /= n
	}
	return ai.NormalizeVector(pooled)
}

// HashingEncoder derives token vectors by feature hashing. Each token
// contributes a pseudo-random vector seeded by its normalized text, mixed
// with a weaker vector for the preceding bigram so word order carries signal.
type HashingEncoder struct{}

// EncodeTokens returns one dim-sized vector per token.
func (HashingEncoder) EncodeTokens(tokens []string, dim int) [][]float32 {
	out := make([][]float32, len(tokens))
	prev := ""
	for i, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		v := seededVector(tok, dim)
		if i > 0 {
			bigram := seededVector(prev+"\x00"+tok, dim)
			for j := range v {
				v[j] += 0.5 * bigram[j]
			}
		}
		out[i] = v
		prev = tok
	}
	return out
}

func seededVector(key string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(key))
	seed := h.Sum64() | 1

	v := make([]float32, dim)
	for i := range v {
		// xorshift64*
		seed ^= seed >> 12
		seed ^= seed << 25
		seed ^= seed >> 27
		r := seed * 2685821657736338717
		v[i] = float32(int64(r>>11)%2000-1000) / 1000
	}
	return v
}
