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

package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// OpenAIHost is the base URL for the OpenAI (or compatible) API.
	// Example: "https://api.openai.com/v1"
	OpenAIHost string

	// OpenAIAPIKey authenticates OpenAI requests.
	OpenAIAPIKey string

	// GoogleAPIKey authenticates Gemini requests.
	GoogleAPIKey string

	// SummaryProvider selects the service used for chunk summaries.
	// Default: ProviderOpenAI
	SummaryProvider Provider

	// SummaryModel is the generative model used for chunk summaries.
	// Example: "gpt-4o-mini", "gemini-1.5-flash"
	SummaryModel string

	// EmbeddingModel is the preferred embedding model.
	// Example: "text-embedding-3-large"
	EmbeddingModel string

	// FallbackChain lists the embedding models tried, in order, when the
	// preferred model fails its connectivity check.
	FallbackChain []string

	// MaxFallbackHops bounds how many fallback models are checked.
	// Default: 3
	MaxFallbackHops int

	// LocalEncoding is the tiktoken encoding used by the local embedding model.
	// Default: "cl100k_base"
	LocalEncoding string

	// EmbeddingBatchSize caps the number of texts sent per embedding request.
	// Default: 512
	EmbeddingBatchSize int

	// Temperature is the sampling temperature for generation.
	// Default: 0.2
	Temperature float64

	// MaxOutputTokens bounds generated output. Zero leaves the provider default.
	// Default: 256
	MaxOutputTokens int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithOpenAIHost sets the OpenAI API base URL.
func WithOpenAIHost(host string) ConfigOption {
	return func(c *Config) {
		c.OpenAIHost = host
	}
}

// WithOpenAIAPIKey sets the OpenAI API key.
func WithOpenAIAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.OpenAIAPIKey = key
	}
}

// WithGoogleAPIKey sets the Gemini API key.
func WithGoogleAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.GoogleAPIKey = key
	}
}

// WithSummaryModel sets the provider and model used for summaries.
func WithSummaryModel(provider Provider, model string) ConfigOption {
	return func(c *Config) {
		c.SummaryProvider = provider
		c.SummaryModel = model
	}
}

// WithEmbeddingModel sets the preferred embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithFallbackChain replaces the embedding fallback chain.
func WithFallbackChain(models ...string) ConfigOption {
	return func(c *Config) {
		c.FallbackChain = append([]string(nil), models...)
	}
}

// WithMaxFallbackHops bounds the number of fallback models checked.
func WithMaxFallbackHops(hops int) ConfigOption {
	return func(c *Config) {
		c.MaxFallbackHops = hops
	}
}

// WithLocalEncoding sets the tokenizer encoding for the local model.
func WithLocalEncoding(encoding string) ConfigOption {
	return func(c *Config) {
		c.LocalEncoding = encoding
	}
}

// WithEmbeddingBatchSize sets the per-request embedding batch size.
func WithEmbeddingBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingBatchSize = size
	}
}

// WithGeneration sets the sampling temperature and output token bound.
func WithGeneration(temperature float64, maxOutputTokens int) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
		c.MaxOutputTokens = maxOutputTokens
	}
}

// DefaultConfig returns a Config with sensible defaults for the hosted OpenAI API.
// The fallback chain walks from the large OpenAI model down to the in-process model.
func DefaultConfig() *Config {
	return &Config{
		OpenAIHost:      "https://api.openai.com/v1",
		SummaryProvider: ProviderOpenAI,
		SummaryModel:    "gpt-4o-mini",
		EmbeddingModel:  "text-embedding-3-large",
		FallbackChain: []string{
			"text-embedding-3-large",
			"text-embedding-3-small",
			"text-embedding-004",
			"multilingual-e5-small",
		},
		MaxFallbackHops: 3,
		LocalEncoding:   "cl100k_base",

		EmbeddingBatchSize: 512,
		Temperature:        0.2,
		MaxOutputTokens:    256,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithOpenAIAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the OpenAI host if missing, which is required
// by the OpenAI API and most compatible servers.
func (c *Config) Normalize() {
	if c.OpenAIHost != "" && !strings.HasSuffix(c.OpenAIHost, "/v1") {
		c.OpenAIHost = strings.TrimSuffix(c.OpenAIHost, "/")
		c.OpenAIHost = c.OpenAIHost + "/v1"
	}
	c.EmbeddingModel = strings.TrimSpace(c.EmbeddingModel)
	if c.LocalEncoding == "" {
		c.LocalEncoding = "cl100k_base"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
// Credentials are not checked here; provider clients report missing keys
// when they are constructed.
func (c *Config) Validate() error {
	c.Normalize()

	if c.OpenAIHost == "" {
		return errors.New("ai config: OpenAIHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.SummaryModel == "" {
		return errors.New("ai config: SummaryModel is required")
	}
	if c.SummaryProvider != ProviderOpenAI && c.SummaryProvider != ProviderGoogle {
		return errors.New("ai config: SummaryProvider must be openai or google")
	}
	if c.MaxFallbackHops < 0 {
		return errors.New("ai config: MaxFallbackHops cannot be negative")
	}
	if c.EmbeddingBatchSize <= 0 {
		return errors.New("ai config: EmbeddingBatchSize must be positive")
	}
	if c.MaxOutputTokens < 0 {
		return errors.New("ai config: MaxOutputTokens cannot be negative")
	}
	return nil
}
