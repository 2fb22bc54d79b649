package chunker

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/tokenize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeParagraphs = `Ragline ingests documents that have already been parsed to markdown. Each document is split into chunks that can be retrieved independently, and every chunk keeps a pointer back to its parent document and its position within it.

Chunks are enriched with a short contextual summary and a ranked keyword list before they are stored. The summary situates the chunk inside the whole document so that retrieval can match questions that use vocabulary from elsewhere in the file.

Finally the chunks are embedded in batches and written to a vector index partitioned by namespace. A chunk is only marked as searchable once the vector store has acknowledged its id, which keeps the index and the document store consistent after partial failures.`

func newWordChunker(t *testing.T, opts ...Option) (*Chunker, *tokenize.Word) {
	t.Helper()
	tok := tokenize.NewWord()
	c, err := New(append([]Option{WithTokenizer(tok)}, opts...)...)
	require.NoError(t, err)
	return c, tok
}

func TestSplit_EmptyInput(t *testing.T) {
	c, _ := newWordChunker(t)
	for _, m := range []Method{MethodToken, MethodLine, MethodRecursive, MethodSemantic} {
		t.Run(string(m), func(t *testing.T) {
			for _, text := range []string{"", "   \n\t  "} {
				res, err := c.Split(context.Background(), text, m, DefaultParams())
				require.NoError(t, err)
				assert.Empty(t, res.Segments)
				assert.False(t, res.FellBack())
			}
		})
	}
}

func TestSplit_WindowNotLargerThanOverlap(t *testing.T) {
	c, _ := newWordChunker(t)

	tests := []struct {
		name   string
		method Method
		mutate func(*Params)
	}{
		{name: "token equal", method: MethodToken, mutate: func(p *Params) { p.WindowTokens, p.OverlapTokens = 10, 10 }},
		{name: "token smaller", method: MethodToken, mutate: func(p *Params) { p.WindowTokens, p.OverlapTokens = 5, 10 }},
		{name: "token zero window", method: MethodToken, mutate: func(p *Params) { p.WindowTokens, p.OverlapTokens = 0, 0 }},
		{name: "line equal", method: MethodLine, mutate: func(p *Params) { p.WindowLines, p.OverlapLines = 3, 3 }},
		{name: "line negative overlap", method: MethodLine, mutate: func(p *Params) { p.WindowLines, p.OverlapLines = 3, -1 }},
		{name: "recursive equal", method: MethodRecursive, mutate: func(p *Params) { p.ChunkSize, p.ChunkOverlap = 100, 100 }},
		{name: "semantic bad threshold", method: MethodSemantic, mutate: func(p *Params) { p.ThresholdType = "median" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			_, err := c.Split(context.Background(), threeParagraphs, tt.method, p)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestSplit_UnknownMethod(t *testing.T) {
	c, _ := newWordChunker(t)
	_, err := c.Split(context.Background(), "text", Method("sentence"), DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = ParseMethod("sentence")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	m, err := ParseMethod(" Recursive ")
	require.NoError(t, err)
	assert.Equal(t, MethodRecursive, m)
}

func TestSplit_TokenWindow50Overlap10(t *testing.T) {
	c, tok := newWordChunker(t)
	p := DefaultParams()
	p.WindowTokens, p.OverlapTokens = 50, 10

	res, err := c.Split(context.Background(), threeParagraphs, MethodToken, p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Segments), 2)
	assert.Equal(t, MethodToken, res.Method)

	encoded := make([][]int, len(res.Segments))
	for i, seg := range res.Segments {
		assert.NotEmpty(t, strings.TrimSpace(seg))
		encoded[i] = tok.Encode(seg)
		assert.LessOrEqual(t, len(encoded[i]), 50)
	}

	for i := 0; i+1 < len(encoded); i++ {
		prev, next := encoded[i], encoded[i+1]
		assert.Equal(t, prev[len(prev)-10:], next[:10], "windows %d and %d share the overlap", i, i+1)
	}

	// removing the overlap reconstructs the document
	var b strings.Builder
	for i, ids := range encoded {
		if i > 0 {
			ids = ids[10:]
		}
		b.WriteString(tok.Decode(ids))
	}
	assert.Equal(t, threeParagraphs, b.String())
}

func TestSplit_LineWindow(t *testing.T) {
	c, _ := newWordChunker(t)
	lines := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		lines = append(lines, strings.Repeat("x", i+1))
	}
	text := strings.Join(lines, "\n")

	p := DefaultParams()
	p.WindowLines, p.OverlapLines = 5, 2

	res, err := c.Split(context.Background(), text, MethodLine, p)
	require.NoError(t, err)
	require.Len(t, res.Segments, 4)

	var b strings.Builder
	for i, seg := range res.Segments {
		segLines := strings.SplitAfter(seg, "\n")
		if segLines[len(segLines)-1] == "" {
			segLines = segLines[:len(segLines)-1]
		}
		assert.LessOrEqual(t, len(segLines), 5)
		if i > 0 {
			segLines = segLines[2:]
		}
		b.WriteString(strings.Join(segLines, ""))
	}
	assert.Equal(t, text, b.String())
}

func TestChunk_LineWindowPackageFunc(t *testing.T) {
	p := DefaultParams()
	p.WindowLines, p.OverlapLines = 2, 0
	segments, err := Chunk(context.Background(), "a\nb\nc\n", MethodLine, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a\nb\n", "c\n"}, segments)
}

func TestSplit_Recursive(t *testing.T) {
	c, _ := newWordChunker(t)
	p := DefaultParams()
	p.ChunkSize, p.ChunkOverlap = 200, 40

	res, err := c.Split(context.Background(), threeParagraphs, MethodRecursive, p)
	require.NoError(t, err)
	require.Greater(t, len(res.Segments), 1)

	joined := strings.Join(res.Segments, " ")
	for _, seg := range res.Segments {
		assert.NotEmpty(t, strings.TrimSpace(seg))
		assert.LessOrEqual(t, utf8.RuneCountInString(seg), 200)
	}
	for _, word := range strings.Fields(threeParagraphs) {
		assert.Contains(t, joined, strings.Trim(word, "."))
	}
}

func topicEmbedder() *mock.MockEmbedder {
	m := mock.NewMockEmbedder(2)
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.Contains(text, "cat") {
				out[i] = []float32{1, 0}
			} else {
				out[i] = []float32{0, 1}
			}
		}
		return out, nil
	}
	return m
}

func TestSplit_Semantic(t *testing.T) {
	c, _ := newWordChunker(t, WithEmbedder(topicEmbedder()))
	text := "The cat sleeps. My cat purrs. A cat hunts. Stocks fell today. Markets closed lower. Bonds rallied."

	p := DefaultParams()
	p.BufferSize = 0

	res, err := c.Split(context.Background(), text, MethodSemantic, p)
	require.NoError(t, err)
	assert.Equal(t, MethodSemantic, res.Method)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, "The cat sleeps. My cat purrs. A cat hunts. ", res.Segments[0])
	assert.Equal(t, "Stocks fell today. Markets closed lower. Bonds rallied.", res.Segments[1])
	assert.Equal(t, text, strings.Join(res.Segments, ""))
}

func TestSplit_SemanticFallsBackWithoutEmbedder(t *testing.T) {
	c, _ := newWordChunker(t)
	p := DefaultParams()
	p.WindowTokens, p.OverlapTokens = 20, 5

	res, err := c.Split(context.Background(), threeParagraphs, MethodSemantic, p)
	require.NoError(t, err)
	assert.True(t, res.FellBack())
	assert.Equal(t, MethodToken, res.Method)
	assert.Equal(t, MethodSemantic, res.FallbackFrom)
	assert.ErrorIs(t, res.FallbackErr, ErrNoEmbedder)
	assert.NotEmpty(t, res.Segments)
}

func TestSplitSentences(t *testing.T) {
	text := "One. Two!  Three? Four...five. Ünïcode sentence.\nLast"
	got := splitSentences(text)
	assert.Equal(t, []string{"One. ", "Two!  ", "Three? ", "Four...five. ", "Ünïcode sentence.\n", "Last"}, got)
	assert.Equal(t, text, strings.Join(got, ""))
}

func TestPercentile(t *testing.T) {
	values := []float64{0, 0, 1, 0, 0}
	assert.InDelta(t, 0.8, percentile(values, 95), 1e-9)
	assert.InDelta(t, 0.0, percentile(values, 50), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 90))
}

func TestGradient(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2}, gradient([]float64{0, 1, 3}))
	assert.Equal(t, []float64{2, 2}, gradient([]float64{1, 3}))
}

func TestBreakpoints(t *testing.T) {
	distances := []float64{0.1, 0.1, 0.9, 0.1, 0.1, 0.1}
	assert.Equal(t, []int{2}, breakpoints(distances, ThresholdStandardDeviation, 1))
	assert.Equal(t, []int{2}, breakpoints(distances, ThresholdInterquartile, 1.5))
}

// byteTokenizer emits one token per byte, splitting multibyte runes the way
// byte-level BPE merges can.
type byteTokenizer struct{}

func (byteTokenizer) Encode(text string) []int {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids
}

func (byteTokenizer) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, id := range tokens {
		b[i] = byte(id)
	}
	return string(b)
}

func (byteTokenizer) Name() string { return "bytes" }

func TestTokenWindows_SnapsToRuneBoundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
	}{
		{"cjk", "日本語のテキスト", 4},
		{"emoji", "🙂🚀", 3},
		{"mixed", "naïve café 🙂 über 日本", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenWindows(byteTokenizer{}, tt.text, tt.size, 0)
			require.NotEmpty(t, got)
			for _, w := range got {
				assert.True(t, utf8.ValidString(w), "window %q", w)
			}
			assert.Equal(t, tt.text, strings.Join(got, ""))
		})
	}
}

func TestTokenWindows_OverlapStaysValidUTF8(t *testing.T) {
	text := strings.Repeat("検索拡張生成🙂", 6)
	got := tokenWindows(byteTokenizer{}, text, 7, 2)
	require.NotEmpty(t, got)
	for _, w := range got {
		assert.True(t, utf8.ValidString(w), "window %q", w)
	}
}

func TestDecodeWindow_CompletesSplitRune(t *testing.T) {
	ids := byteTokenizer{}.Encode("a日b")
	assert.Equal(t, "a日", decodeWindow(byteTokenizer{}, ids, 0, 2))
	assert.Equal(t, "b", decodeWindow(byteTokenizer{}, ids, 2, 5))
}
