package keywords

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTagger tags every word as a noun unless listed as an adjective.
type fakeTagger struct {
	adjectives map[string]bool
	err        error
	panics     bool
}

func (f fakeTagger) Tag(text string) ([]Token, error) {
	if f.panics {
		panic("model not loaded")
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []Token
	for _, w := range strings.Fields(text) {
		tag := "NN"
		if f.adjectives[strings.ToLower(w)] {
			tag = "JJ"
		}
		out = append(out, Token{Text: w, Tag: tag})
	}
	return out, nil
}

func newExtractor(t *testing.T, tagger Tagger) *Extractor {
	t.Helper()
	e, err := New(WithTagger(tagger))
	require.NoError(t, err)
	return e
}

func TestNounPhrases(t *testing.T) {
	tokens := []Token{
		{Text: "The", Tag: "DT"},
		{Text: "vector", Tag: "NN"},
		{Text: "index", Tag: "NN"},
		{Text: "stores", Tag: "VBZ"},
		{Text: "dense", Tag: "JJ"},
		{Text: "embeddings", Tag: "NNS"},
		{Text: ".", Tag: "."},
		{Text: "quick", Tag: "JJ"},
		{Text: "runs", Tag: "VBZ"},
	}
	assert.Equal(t, []string{"vector index", "vector", "index", "dense embeddings", "embeddings"}, nounPhrases(tokens))
}

func TestExtractAll_IDFFavorsRareTerms(t *testing.T) {
	e := newExtractor(t, fakeTagger{})
	chunks := []string{
		"system and pgvector",
		"system and badger",
		"system and router",
	}

	got := e.ExtractAll(chunks, nil, 5)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"pgvector", "system"}, got[0])
	assert.Equal(t, []string{"badger", "system"}, got[1])
	assert.Equal(t, []string{"router", "system"}, got[2])
}

func TestExtract_SummaryBoost(t *testing.T) {
	e := newExtractor(t, fakeTagger{})
	assert.Equal(t, []string{"alpha", "beta"}, e.Extract("alpha and beta", "", "", 5))
	assert.Equal(t, []string{"beta", "alpha"}, e.Extract("alpha and beta", "", "All about beta", 5))
}

func TestExtract_AdjectiveNounPhrase(t *testing.T) {
	e := newExtractor(t, fakeTagger{adjectives: map[string]bool{"semantic": true}})
	got := e.Extract("semantic search and semantic search", "", "", 10)
	assert.Equal(t, "search", got[0])
	assert.Contains(t, got, "semantic search")
}

func TestExtract_FallbackOnTaggerFailure(t *testing.T) {
	text := "Cats and dogs. Cats chase mice; the cats win!"

	t.Run("error", func(t *testing.T) {
		e := newExtractor(t, fakeTagger{err: errors.New("no model")})
		assert.Equal(t, []string{"cats", "chase", "dogs"}, e.Extract(text, "", "", 10))
	})

	t.Run("panic", func(t *testing.T) {
		e := newExtractor(t, fakeTagger{panics: true})
		assert.NotPanics(t, func() {
			assert.Equal(t, []string{"cats", "chase", "dogs"}, e.Extract(text, "", "", 10))
		})
	})

	t.Run("nil tagger", func(t *testing.T) {
		e := newExtractor(t, nil)
		assert.Equal(t, []string{"cats", "chase", "dogs"}, e.Extract(text, "", "", 10))
	})
}

func TestKeywordCountScalesWithLength(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = fmt.Sprintf("term%c%c", 'a'+i/26, 'a'+i%26)
	}
	text := strings.Join(words, " ")

	e := newExtractor(t, nil)
	assert.Len(t, e.Extract(text, "", "", 10), 4)
	assert.Len(t, e.Extract(text, "", "", 2), 2)
	assert.Len(t, e.Extract("short words appear in this sentence", "", "", 10), 3)
}

func TestFrequency(t *testing.T) {
	assert.Equal(t, []string{"cats", "chase", "dogs", "mice", "win"}, Frequency("Cats and dogs. Cats chase mice; the cats win!", 10))
	assert.Empty(t, Frequency("a an the of", 5))
}

func TestExtract_Deterministic(t *testing.T) {
	e := newExtractor(t, fakeTagger{})
	text := "zeta alpha gamma beta delta epsilon"
	first := e.Extract(text, "alpha beta\n\ngamma", "", 4)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Extract(text, "alpha beta\n\ngamma", "", 4))
	}
}

func TestWithMinKeywords(t *testing.T) {
	_, err := New(WithMinKeywords(0))
	assert.Error(t, err)
}

func TestProseTagger(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	text := "The vector index stores dense embeddings for every chunk. The vector index is partitioned by namespace."
	got := e.Extract(text, "", "", 5)
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 5)
	assert.Equal(t, got, e.Extract(text, "", "", 5))
}
