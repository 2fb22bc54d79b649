package embedding

import (
	"context"
	"fmt"

	"github.com/poiesic/ragline/ai"
)

// modelEmbedder exposes one model of a Router as an ai.Embedder.
type modelEmbedder struct {
	router *Router
	model  ai.Model
}

var _ ai.Embedder = (*modelEmbedder)(nil)

// Embedder returns an ai.Embedder bound to model. Calls share the router's
// client cache and limiter but are not retried; the semantic chunker uses
// it to embed sentences.
func (r *Router) Embedder(model string) (ai.Embedder, error) {
	m, err := Lookup(model)
	if err != nil {
		return nil, err
	}
	return &modelEmbedder{router: r, model: m}, nil
}

func (e *modelEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *modelEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := e.router.client(ctx, e.model)
	if err != nil {
		return nil, err
	}
	if err := e.router.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := client.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorCount, len(out), len(texts))
	}
	return out, nil
}
