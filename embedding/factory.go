package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/gemini"
	"github.com/poiesic/ragline/ai/local"
	"github.com/poiesic/ragline/ai/openai"
	"github.com/poiesic/ragline/tokenize"
)

// ClientFactory builds the embedding client for a model.
type ClientFactory func(ctx context.Context, model ai.Model) (ai.Embedder, error)

// NewClientFactory returns a ClientFactory that dispatches on the model's
// provider using cfg for credentials and endpoints.
func NewClientFactory(cfg *ai.Config) ClientFactory {
	return func(ctx context.Context, model ai.Model) (ai.Embedder, error) {
		switch model.Provider {
		case ai.ProviderOpenAI:
			return openai.NewEmbedder(cfg, model.Name)
		case ai.ProviderGoogle:
			return gemini.NewEmbedder(ctx, cfg, model.Name)
		case ai.ProviderLocal:
			tok, err := tokenize.Load(cfg.LocalEncoding)
			if err != nil {
				slog.Default().Warn("local tokenizer unavailable, using word tokenizer",
					"encoding", cfg.LocalEncoding, "err", err)
				tok = tokenize.NewWord()
			}
			return local.NewEmbedder(model.Name, model.Dimension, local.WithTokenizer(tok))
		default:
			return nil, fmt.Errorf("%w: %v", ai.ErrUnknownProvider, model.Provider)
		}
	}
}
