package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/tokenize"
)

// Method selects a chunking strategy.
type Method string

const (
	MethodToken     Method = "token"
	MethodLine      Method = "line"
	MethodRecursive Method = "recursive"
	MethodSemantic  Method = "semantic"
)

// ParseMethod converts a method name to a Method.
func ParseMethod(name string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	switch m {
	case MethodToken, MethodLine, MethodRecursive, MethodSemantic:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
}

// ThresholdType selects how the semantic breakpoint threshold is computed.
type ThresholdType string

const (
	ThresholdPercentile        ThresholdType = "percentile"
	ThresholdStandardDeviation ThresholdType = "standard_deviation"
	ThresholdInterquartile     ThresholdType = "interquartile"
	ThresholdGradient          ThresholdType = "gradient"
)

// Params holds the parameters of every strategy. Only the fields of the
// selected method are consulted.
type Params struct {
	// Token window
	WindowTokens  int
	OverlapTokens int
	Encoding      string

	// Line window
	WindowLines  int
	OverlapLines int

	// Recursive character split, measured in runes
	ChunkSize    int
	ChunkOverlap int
	Separators   []string

	// Semantic split
	ThresholdType   ThresholdType
	ThresholdAmount float64
	BufferSize      int
}

// DefaultParams returns the default parameters for all strategies.
func DefaultParams() Params {
	return Params{
		WindowTokens:  512,
		OverlapTokens: 100,
		Encoding:      "cl100k_base",

		WindowLines:  40,
		OverlapLines: 5,

		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", ". ", " ", ""},

		ThresholdType:   ThresholdPercentile,
		ThresholdAmount: defaultThresholdAmount[ThresholdPercentile],
		BufferSize:      1,
	}
}

var defaultThresholdAmount = map[ThresholdType]float64{
	ThresholdPercentile:        95,
	ThresholdStandardDeviation: 3,
	ThresholdInterquartile:     1.5,
	ThresholdGradient:          95,
}

// Validate checks the parameters of method.
func (p Params) Validate(method Method) error {
	switch method {
	case MethodToken:
		return validateWindow("token", p.WindowTokens, p.OverlapTokens)
	case MethodLine:
		return validateWindow("line", p.WindowLines, p.OverlapLines)
	case MethodRecursive:
		if err := validateWindow("character", p.ChunkSize, p.ChunkOverlap); err != nil {
			return err
		}
		if len(p.Separators) == 0 {
			return fmt.Errorf("%w: no separators", ErrInvalidConfiguration)
		}
		return nil
	case MethodSemantic:
		if _, ok := defaultThresholdAmount[p.ThresholdType]; !ok {
			return fmt.Errorf("%w: threshold type %q", ErrInvalidConfiguration, p.ThresholdType)
		}
		if p.ThresholdAmount < 0 || p.BufferSize < 0 {
			return fmt.Errorf("%w: negative semantic parameter", ErrInvalidConfiguration)
		}
		if (p.ThresholdType == ThresholdPercentile || p.ThresholdType == ThresholdGradient) && p.ThresholdAmount > 100 {
			return fmt.Errorf("%w: percentile above 100", ErrInvalidConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

func validateWindow(unit string, window, overlap int) error {
	if window <= 0 {
		return fmt.Errorf("%w: %s window must be positive, got %d", ErrInvalidConfiguration, unit, window)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: %s overlap cannot be negative, got %d", ErrInvalidConfiguration, unit, overlap)
	}
	if overlap >= window {
		return fmt.Errorf("%w: %s overlap %d must be smaller than window %d", ErrInvalidConfiguration, unit, overlap, window)
	}
	return nil
}

// Result is the outcome of a split.
type Result struct {
	Segments []string
	// Method is the strategy that produced Segments.
	Method Method
	// FallbackFrom is the configured method when a fallback occurred.
	FallbackFrom Method
	// FallbackErr is the runtime error that caused the fallback.
	FallbackErr error
}

// FellBack reports whether the configured strategy was replaced.
func (r Result) FellBack() bool {
	return r.FallbackFrom != ""
}

// Chunker splits text with a configured strategy.
// It is safe for concurrent use.
type Chunker struct {
	embedder  ai.Embedder
	tokenizer tokenize.Tokenizer
	logger    *slog.Logger

	mu         sync.Mutex
	tokenizers map[string]tokenize.Tokenizer
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithEmbedder sets the embedder used by semantic splitting.
func WithEmbedder(e ai.Embedder) Option {
	return func(c *Chunker) error {
		c.embedder = e
		return nil
	}
}

// WithTokenizer forces the tokenizer used by token windows, ignoring
// Params.Encoding.
func WithTokenizer(t tokenize.Tokenizer) Option {
	return func(c *Chunker) error {
		if t == nil {
			return errors.New("tokenizer cannot be nil")
		}
		c.tokenizer = t
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		c.logger = logger
		return nil
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		logger:     slog.Default(),
		tokenizers: make(map[string]tokenize.Tokenizer),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Chunk splits text with method and params using a Chunker without an
// embedder. Semantic requests therefore fall back to token windows.
func Chunk(ctx context.Context, text string, method Method, params Params) ([]string, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}
	res, err := c.Split(ctx, text, method, params)
	if err != nil {
		return nil, err
	}
	return res.Segments, nil
}

// Split divides text into ordered non-empty segments. Empty or
// whitespace-only text yields no segments and no error. Invalid
// parameters are returned as errors; runtime failures of the strategy
// fall back to token windows with the default window sizes.
func (c *Chunker) Split(ctx context.Context, text string, method Method, params Params) (Result, error) {
	if err := params.Validate(method); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Result{Method: method}, nil
	}

	segments, err := c.run(ctx, text, method, params)
	if err == nil {
		return Result{Segments: segments, Method: method}, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if method == MethodToken && !errors.Is(err, errTokenizerUnavailable) {
		return Result{}, err
	}

	c.logger.Warn("chunking strategy failed, falling back", "from", method, "to", MethodToken, "err", err)

	fallback := params
	if validateWindow("token", fallback.WindowTokens, fallback.OverlapTokens) != nil {
		d := DefaultParams()
		fallback.WindowTokens, fallback.OverlapTokens = d.WindowTokens, d.OverlapTokens
	}
	tok, terr := c.tokenizerFor(fallback.Encoding)
	if terr != nil {
		c.logger.Warn("tokenizer unavailable, using word tokenizer", "encoding", fallback.Encoding, "err", terr)
		tok = tokenize.NewWord()
	}

	return Result{
		Segments:     tokenWindows(tok, text, fallback.WindowTokens, fallback.OverlapTokens),
		Method:       MethodToken,
		FallbackFrom: method,
		FallbackErr:  err,
	}, nil
}

func (c *Chunker) run(ctx context.Context, text string, method Method, p Params) ([]string, error) {
	switch method {
	case MethodToken:
		tok, err := c.tokenizerFor(p.Encoding)
		if err != nil {
			return nil, err
		}
		return tokenWindows(tok, text, p.WindowTokens, p.OverlapTokens), nil
	case MethodLine:
		return lineWindows(text, p.WindowLines, p.OverlapLines), nil
	case MethodRecursive:
		return recursiveSplit(text, p)
	case MethodSemantic:
		return c.semanticSplit(ctx, text, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

var errTokenizerUnavailable = errors.New("tokenizer unavailable")

func (c *Chunker) tokenizerFor(encoding string) (tokenize.Tokenizer, error) {
	if c.tokenizer != nil {
		return c.tokenizer, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokenizers[encoding]; ok {
		return tok, nil
	}
	tok, err := tokenize.Load(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenizerUnavailable, err)
	}
	c.tokenizers[encoding] = tok
	return tok, nil
}

func nonBlank(segments []string) []string {
	out := segments[:0]
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
