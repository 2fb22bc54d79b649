// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package summarizer produces short contextual summaries for chunks.
//
// Every provider call, including retries, waits on the shared rate limiter.
// Calls are retried with bounded exponential backoff; when retries are
// exhausted the summary degrades to a marked placeholder that embeds the
// truncated error, so the chunk can still be stored and indexed.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/ratelimit"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts   = 3
	defaultBaseDelay     = time.Second
	defaultMaxDelay      = 10 * time.Second
	defaultCallTimeout   = 30 * time.Second
	defaultContextBudget = 12000
	defaultGroupSize     = 5
	defaultThrottlePause = 30 * time.Second
	placeholderErrRunes  = 120
)

// Result is the outcome of summarizing one chunk.
type Result struct {
	Text string
	Type core.SummaryType
	// Err is set when Text is a placeholder.
	Err error
}

// Degraded reports whether the summary is a placeholder.
func (r Result) Degraded() bool {
	return r.Err != nil
}

// Placeholder returns the marked summary used when generation fails.
func Placeholder(err error) string {
	return fmt.Sprintf("[summary unavailable: %s]", truncateRunes(err.Error(), placeholderErrRunes))
}

// Summarizer generates contextual chunk summaries. It is safe for
// concurrent use.
type Summarizer struct {
	generator     ai.Generator
	limiter       ratelimit.Limiter
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	callTimeout   time.Duration
	contextBudget int
	groupSize     int
	throttlePause time.Duration
	logger        *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer) error

// WithLimiter sets the shared rate limiter. Default: ratelimit.Noop.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Summarizer) error {
		if l == nil {
			return errors.New("limiter cannot be nil")
		}
		s.limiter = l
		return nil
	}
}

// WithRetry sets the attempt count and backoff bounds.
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(s *Summarizer) error {
		if maxAttempts <= 0 {
			return ai.ErrInvalidMaxAttempts
		}
		s.maxAttempts = maxAttempts
		s.baseDelay = baseDelay
		s.maxDelay = maxDelay
		return nil
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Summarizer) error {
		s.callTimeout = d
		return nil
	}
}

// WithContextBudget sets how many runes of the document are sent with
// each chunk.
func WithContextBudget(runes int) Option {
	return func(s *Summarizer) error {
		s.contextBudget = runes
		return nil
	}
}

// WithGroupSize sets how many summaries SummarizeAll issues concurrently.
func WithGroupSize(n int) Option {
	return func(s *Summarizer) error {
		if n <= 0 {
			return fmt.Errorf("group size must be positive, got %d", n)
		}
		s.groupSize = n
		return nil
	}
}

// WithThrottlePause sets how long the shared limiter is paused when the
// provider reports throttling. Zero disables the pause.
func WithThrottlePause(d time.Duration) Option {
	return func(s *Summarizer) error {
		if d < 0 {
			return fmt.Errorf("throttle pause must not be negative, got %s", d)
		}
		s.throttlePause = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) error {
		s.logger = logger
		return nil
	}
}

// New creates a Summarizer backed by generator.
func New(generator ai.Generator, opts ...Option) (*Summarizer, error) {
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	s := &Summarizer{
		generator:     generator,
		limiter:       ratelimit.Noop{},
		maxAttempts:   defaultMaxAttempts,
		baseDelay:     defaultBaseDelay,
		maxDelay:      defaultMaxDelay,
		callTimeout:   defaultCallTimeout,
		contextBudget: defaultContextBudget,
		groupSize:     defaultGroupSize,
		throttlePause: defaultThrottlePause,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "summarizer", "model", generator.ModelName())
	return s, nil
}

// Summarize returns a summary of chunk's role within documentContext.
// It never fails: exhausted retries yield a placeholder with Err set.
// Both outcomes carry core.SummaryBasic provenance.
func (s *Summarizer) Summarize(ctx context.Context, documentContext, chunk string) Result {
	prompt := buildPrompt(documentContext, chunk, s.contextBudget)

	var text string
	err := ai.RetryWithBackoff(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx := ctx
		if s.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
			defer cancel()
		}
		out, err := s.generator.Generate(callCtx, prompt)
		if err != nil {
			if ai.IsRateLimited(err) && ratelimit.PauseIfSupported(s.limiter, s.throttlePause) {
				s.logger.Warn("provider throttling, pausing summary calls", "pause", s.throttlePause)
			}
			return err
		}
		text = out
		return nil
	}, s.maxAttempts, s.baseDelay, s.maxDelay)

	if err != nil {
		s.logger.Warn("summary generation failed, using placeholder", "attempts", s.maxAttempts, "err", err)
		return Result{Text: Placeholder(err), Type: core.SummaryBasic, Err: err}
	}
	return Result{Text: text, Type: core.SummaryBasic}
}

// SummarizeAll summarizes chunks of one document. Chunks are processed in
// groups; the summaries of a group are requested concurrently and all
// groups share the limiter. Results are positional.
func (s *Summarizer) SummarizeAll(ctx context.Context, documentContext string, chunks []string) []Result {
	results := make([]Result, len(chunks))
	for start := 0; start < len(chunks); start += s.groupSize {
		end := min(start+s.groupSize, len(chunks))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = s.Summarize(ctx, documentContext, chunks[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}
