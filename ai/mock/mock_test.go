package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragline/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ai.Embedder  = (*MockEmbedder)(nil)
	_ ai.Generator = (*MockGenerator)(nil)
)

func TestMockEmbedder_Defaults(t *testing.T) {
	m := NewMockEmbedder(16)

	vectors, err := m.EmbedTexts(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], 16)
	assert.Equal(t, vectors[0], vectors[2])
	assert.NotEqual(t, vectors[0], vectors[1])
	assert.InDelta(t, 1.0, ai.CosineSimilarity(vectors[0], vectors[0]), 1e-6)

	assert.Equal(t, 1, m.CallCount())
	assert.Equal(t, []string{"a", "b", "a"}, m.Texts())
}

func TestMockEmbedder_InjectedFailure(t *testing.T) {
	m := NewMockEmbedder(4)
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("down")
	}

	_, err := m.EmbedText(context.Background(), "test")
	assert.Error(t, err)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	_, err = m.EmbedText(context.Background(), "test")
	assert.NoError(t, err)
}

func TestMockGenerator_Default(t *testing.T) {
	g := NewMockGenerator()
	out, err := g.Generate(context.Background(), "Document:\nfoo\n\nChunk: The cat sat. Then it left.")
	require.NoError(t, err)
	assert.Equal(t, "Summary: Chunk: The cat sat.", out)
	assert.Equal(t, 1, g.CallCount())
	assert.Equal(t, "mock-generator", g.ModelName())
}
