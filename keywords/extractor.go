package keywords

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"unicode"
)

const (
	defaultMinKeywords = 3
	defaultMaxKeywords = 10
	wordsPerKeyword    = 50
	summaryBoost       = 1.5
	maxPhraseWords     = 4
)

// Extractor ranks keywords for chunks. It is safe for concurrent use when
// its Tagger is.
type Extractor struct {
	tagger      Tagger
	minKeywords int
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithTagger replaces the part-of-speech tagger. A nil tagger forces the
// frequency fallback.
func WithTagger(t Tagger) Option {
	return func(e *Extractor) error {
		e.tagger = t
		return nil
	}
}

// WithMinKeywords sets the floor on the number of keywords returned for
// chunks with enough candidates. Default: 3.
func WithMinKeywords(n int) Option {
	return func(e *Extractor) error {
		if n < 1 {
			return fmt.Errorf("min keywords must be positive, got %d", n)
		}
		e.minKeywords = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		e.logger = logger
		return nil
	}
}

// New creates an Extractor using the prose tagger by default.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		tagger:      ProseTagger{},
		minKeywords: defaultMinKeywords,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "keyword-extractor")
	return e, nil
}

// Extract returns up to maxKeywords keywords for chunk. Paragraphs of
// documentContext act as the sibling corpus for IDF weighting; terms that
// appear in summary are boosted. maxKeywords <= 0 uses the default ceiling.
func (e *Extractor) Extract(chunk, documentContext, summary string, maxKeywords int) []string {
	corpus := []string{chunk}
	for _, para := range strings.Split(documentContext, "\n\n") {
		if strings.TrimSpace(para) != "" {
			corpus = append(corpus, para)
		}
	}
	return e.extract(chunk, summary, newCorpus(corpus), maxKeywords)
}

// ExtractAll extracts keywords for every chunk of one document with IDF
// computed jointly over the chunks. summaries may be nil or shorter than
// chunks.
func (e *Extractor) ExtractAll(chunks []string, summaries []string, maxKeywords int) [][]string {
	c := newCorpus(chunks)
	out := make([][]string, len(chunks))
	for i, chunk := range chunks {
		var summary string
		if i < len(summaries) {
			summary = summaries[i]
		}
		out[i] = e.extract(chunk, summary, c, maxKeywords)
	}
	return out
}

func (e *Extractor) extract(chunk, summary string, c *corpus, maxKeywords int) (result []string) {
	if maxKeywords <= 0 {
		maxKeywords = defaultMaxKeywords
	}
	n := keywordCount(chunk, e.minKeywords, maxKeywords)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("keyword extraction panicked, using frequency fallback", "panic", r)
			result = Frequency(chunk, n)
		}
	}()

	if e.tagger == nil {
		return Frequency(chunk, n)
	}

	tokens, err := e.tagger.Tag(chunk)
	if err != nil {
		e.logger.Warn("tagging failed, using frequency fallback", "err", err)
		return Frequency(chunk, n)
	}

	phrases := nounPhrases(tokens)
	if len(phrases) == 0 {
		return Frequency(chunk, n)
	}

	tf := make(map[string]int)
	for _, p := range phrases {
		tf[p]++
	}

	lowerSummary := strings.ToLower(summary)
	scored := make([]scoredTerm, 0, len(tf))
	for term, freq := range tf {
		score := float64(freq) * c.idf(term)
		if lowerSummary != "" && strings.Contains(lowerSummary, term) {
			score *= summaryBoost
		}
		scored = append(scored, scoredTerm{term: term, score: score})
	}
	return topTerms(scored, n)
}

// keywordCount scales with the chunk's word count, clamped to [lo, hi].
func keywordCount(text string, lo, hi int) int {
	lo = min(lo, hi)
	n := len(strings.Fields(text)) / wordsPerKeyword
	return max(lo, min(n, hi))
}

// nounPhrases returns lowercase phrases formed by optional adjectives
// followed by one or more nouns. The nouns of multi-word phrases are also
// emitted on their own so heads compete with the phrases containing them.
func nounPhrases(tokens []Token) []string {
	type word struct {
		text string
		noun bool
	}
	var out []string
	var run []word

	flush := func() {
		last := -1
		for i, w := range run {
			if w.noun {
				last = i
			}
		}
		if last >= 0 {
			words := make([]string, 0, last+1)
			for _, w := range run[:last+1] {
				words = append(words, w.text)
			}
			if len(words) <= maxPhraseWords {
				out = append(out, strings.Join(words, " "))
			}
			if len(words) > 1 {
				for _, w := range run[:last+1] {
					if w.noun {
						out = append(out, w.text)
					}
				}
			}
		}
		run = run[:0]
	}

	for _, tok := range tokens {
		text := normalizeWord(tok.Text)
		switch {
		case text == "" || IsStopword(text):
			flush()
		case strings.HasPrefix(tok.Tag, "NN"):
			run = append(run, word{text: text, noun: true})
		case strings.HasPrefix(tok.Tag, "JJ"):
			if len(run) > 0 && run[len(run)-1].noun {
				flush()
			}
			run = append(run, word{text: text})
		default:
			flush()
		}
	}
	flush()

	filtered := out[:0]
	for _, p := range out {
		if len([]rune(p)) >= 3 {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func normalizeWord(w string) string {
	w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	hasLetter := false
	for _, r := range w {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return ""
	}
	return w
}

// Frequency ranks alphabetic tokens of at least three letters by count,
// ignoring stopwords. Ties break lexicographically.
func Frequency(text string, n int) []string {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len([]rune(w)) < 3 || IsStopword(w) {
			continue
		}
		counts[w]++
	}
	scored := make([]scoredTerm, 0, len(counts))
	for w, c := range counts {
		scored = append(scored, scoredTerm{term: w, score: float64(c)})
	}
	return topTerms(scored, n)
}

type scoredTerm struct {
	term  string
	score float64
}

func topTerms(scored []scoredTerm, n int) []string {
	slices.SortFunc(scored, func(a, b scoredTerm) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return strings.Compare(a.term, b.term)
		}
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.term
	}
	return out
}

type corpus struct {
	docs []string
}

func newCorpus(docs []string) *corpus {
	lower := make([]string, len(docs))
	for i, d := range docs {
		lower[i] = strings.ToLower(d)
	}
	return &corpus{docs: lower}
}

// idf is the smoothed inverse document frequency of term.
func (c *corpus) idf(term string) float64 {
	df := 0
	for _, d := range c.docs {
		if strings.Contains(d, term) {
			df++
		}
	}
	return math.Log(float64(1+len(c.docs))/float64(1+df)) + 1
}
