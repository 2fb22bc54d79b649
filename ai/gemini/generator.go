package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/ragline/ai"
)

// Generator implements ai.Generator using Gemini generative models.
type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a generator for the named Gemini model.
// The caller owns the returned generator and must Close it.
func NewGenerator(ctx context.Context, config *ai.Config, model string) (*Generator, error) {
	client, err := newClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Generator{
		client:      client,
		model:       model,
		temperature: float32(config.Temperature),
		maxTokens:   int32(config.MaxOutputTokens),
		logger:      slog.Default().With("component", "gemini-generator", "model", model),
	}, nil
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate sends prompt to the model and returns the concatenated text parts.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	temp := g.temperature
	m.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	if g.maxTokens > 0 {
		maxTokens := g.maxTokens
		m.GenerationConfig.MaxOutputTokens = &maxTokens
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

// ModelName returns the generative model identifier.
func (g *Generator) ModelName() string {
	return g.model
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ai.ErrEmptyResponse
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}
