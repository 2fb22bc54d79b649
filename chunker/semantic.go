package chunker

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/ragline/ai"
)

func (c *Chunker) semanticSplit(ctx context.Context, text string, p Params) ([]string, error) {
	if c.embedder == nil {
		return nil, ErrNoEmbedder
	}

	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return nonBlank(sentences), nil
	}

	groups := bufferSentences(sentences, p.BufferSize)
	vectors, err := c.embedder.EmbedTexts(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("embedding sentences: %w", err)
	}
	if len(vectors) != len(groups) {
		return nil, fmt.Errorf("embedding sentences: got %d vectors for %d inputs", len(vectors), len(groups))
	}

	distances := make([]float64, len(vectors)-1)
	for i := range distances {
		distances[i] = 1 - ai.CosineSimilarity(vectors[i], vectors[i+1])
	}

	amount := p.ThresholdAmount
	if amount == 0 {
		amount = defaultThresholdAmount[p.ThresholdType]
	}
	breaks := breakpoints(distances, p.ThresholdType, amount)

	var out []string
	start := 0
	for _, b := range breaks {
		out = append(out, strings.Join(sentences[start:b+1], ""))
		start = b + 1
	}
	if start < len(sentences) {
		out = append(out, strings.Join(sentences[start:], ""))
	}
	return nonBlank(out), nil
}

// splitSentences cuts after '.', '!' or '?' followed by whitespace. The
// whitespace stays with the preceding sentence so joining the result
// reproduces text.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		for end < len(text) {
			next, n := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				break
			}
			end += n
		}
		if end == i || end == len(text) {
			continue
		}
		out = append(out, text[start:end])
		start = end
		i = end
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// bufferSentences joins each sentence with up to size neighbours on each
// side so the embedding reflects local context.
func bufferSentences(sentences []string, size int) []string {
	out := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-size)
		hi := min(len(sentences), i+size+1)
		out[i] = strings.TrimSpace(strings.Join(sentences[lo:hi], ""))
	}
	return out
}

// breakpoints returns the indices i where the boundary after sentence i
// should be cut.
func breakpoints(distances []float64, kind ThresholdType, amount float64) []int {
	values := distances
	if kind == ThresholdGradient {
		values = gradient(distances)
	}

	var threshold float64
	switch kind {
	case ThresholdPercentile, ThresholdGradient:
		threshold = percentile(values, amount)
	case ThresholdStandardDeviation:
		mean, std := meanStd(values)
		threshold = mean + amount*std
	case ThresholdInterquartile:
		mean, _ := meanStd(values)
		iqr := percentile(values, 75) - percentile(values, 25)
		threshold = mean + amount*iqr
	}

	var out []int
	for i, v := range values {
		if v > threshold {
			out = append(out, i)
		}
	}
	return out
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// gradient matches numpy.gradient: one-sided differences at the ends,
// central differences inside.
func gradient(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	switch {
	case n < 2:
		return out
	case n == 2:
		d := values[1] - values[0]
		out[0], out[1] = d, d
		return out
	}
	out[0] = values[1] - values[0]
	out[n-1] = values[n-1] - values[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (values[i+1] - values[i-1]) / 2
	}
	return out
}
