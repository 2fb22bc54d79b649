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

package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/ragline/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a generator for the named chat model.
func NewGenerator(config *ai.Config, model string) (ai.Generator, error) {
	client, err := newClient(config, openai.WithModel(model))
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		model:       model,
		temperature: config.Temperature,
		maxTokens:   config.MaxOutputTokens,
		logger:      slog.Default().With("component", "openai-generator", "model", model),
	}, nil
}

// Generate sends prompt as a single user message and returns the reply text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, g.client, prompt, opts...)
	if err != nil {
		g.logger.Debug("generation failed", "err", err)
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

// ModelName returns the chat model identifier.
func (g *Generator) ModelName() string {
	return g.model
}
