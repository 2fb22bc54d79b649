// Package mock provides test doubles for the ai service interfaces.
//
// MockEmbedder and MockGenerator run without external services and return
// deterministic results by default. Tests inject behavior through the
// exported function fields and assert on call counts.
//
//	embedder := mock.NewMockEmbedder(8)
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//	...
//	assert.Equal(t, 3, embedder.CallCount())
//
// # Default Behavior
//
//   - MockEmbedder: unit vectors derived from an FNV hash of the text
//   - MockGenerator: the first sentence of the prompt's last non-empty line
package mock
