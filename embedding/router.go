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

// Package embedding routes embedding requests to provider clients.
//
// The Router resolves a usable model once, at Initialize time, by probing
// the requested model and walking a bounded fallback chain. EmbedBatch then
// retries only the resolved model: a batch is never split across models,
// since vectors from different models cannot share a namespace.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ratelimit"
)

const (
	healthCheckText   = "test"
	defaultRetryDelay = 2 * time.Second

	// defaultThrottlePause is how long every caller of the limiter is held
	// after a provider answers 429.
	defaultThrottlePause = 30 * time.Second
)

// Router maps model names to provider clients. It is safe for concurrent use.
type Router struct {
	factory    ClientFactory
	limiter    ratelimit.Limiter
	chain      []string
	maxHops    int
	retryDelay time.Duration
	throttle   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]ai.Embedder
}

// Option configures a Router.
type Option func(*Router) error

// WithClientFactory replaces the provider client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(r *Router) error {
		if f == nil {
			return errors.New("client factory cannot be nil")
		}
		r.factory = f
		return nil
	}
}

// WithLimiter sets the limiter acquired before every embedding call,
// health checks included.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(r *Router) error {
		if l == nil {
			return errors.New("limiter cannot be nil")
		}
		r.limiter = l
		return nil
	}
}

// WithFallbackChain replaces the fallback chain from the AI config.
func WithFallbackChain(models ...string) Option {
	return func(r *Router) error {
		r.chain = slices.Clone(models)
		return nil
	}
}

// WithMaxFallbackHops bounds how many fallback models are checked.
func WithMaxFallbackHops(n int) Option {
	return func(r *Router) error {
		if n < 0 {
			return fmt.Errorf("max fallback hops cannot be negative, got %d", n)
		}
		r.maxHops = n
		return nil
	}
}

// WithThrottlePause sets how long the limiter is paused when a provider
// reports throttling. Zero disables the pause.
func WithThrottlePause(d time.Duration) Option {
	return func(r *Router) error {
		if d < 0 {
			return fmt.Errorf("throttle pause must not be negative, got %s", d)
		}
		r.throttle = d
		return nil
	}
}

// WithRetryDelay sets the fixed sleep between EmbedBatch attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Router) error {
		r.retryDelay = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		r.logger = logger
		return nil
	}
}

// NewRouter creates a Router. The fallback chain and hop bound default to
// the values in cfg; every chain entry must be a known model.
func NewRouter(cfg *ai.Config, opts ...Option) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Router{
		factory:    NewClientFactory(cfg),
		limiter:    ratelimit.Noop{},
		chain:      slices.Clone(cfg.FallbackChain),
		maxHops:    cfg.MaxFallbackHops,
		retryDelay: defaultRetryDelay,
		throttle:   defaultThrottlePause,
		logger:     slog.Default(),
		clients:    make(map[string]ai.Embedder),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	for _, name := range r.chain {
		if _, err := Lookup(name); err != nil {
			return nil, fmt.Errorf("fallback chain: %w", err)
		}
	}
	r.logger = r.logger.With("component", "embedding-router")
	return r, nil
}

// candidates returns the requested model followed by the fallback models
// that come after it in the chain, at most maxHops of them. A model absent
// from the chain is followed by the whole chain.
func (r *Router) candidates(requested string) []string {
	rest := r.chain
	if i := slices.Index(r.chain, requested); i >= 0 {
		rest = r.chain[i+1:]
	}
	out := []string{requested}
	for _, name := range rest {
		if len(out)-1 >= r.maxHops {
			break
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Initialize resolves a usable model. The requested model is checked first;
// on failure the fallback chain is walked. Unknown model names are
// configuration errors and are not checked.
func (r *Router) Initialize(ctx context.Context, model string) (ai.Model, error) {
	if _, err := Lookup(model); err != nil {
		return ai.Model{}, err
	}

	var errs []error
	for hop, name := range r.candidates(model) {
		m, _ := Lookup(name)
		if err := r.healthCheck(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ai.Model{}, ctx.Err()
			}
			r.logger.Warn("embedding model health check failed", "model", name, "hop", hop, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if name != model {
			r.logger.Warn("using fallback embedding model", "requested", model, "model", name, "dimension", m.Dimension)
		} else {
			r.logger.Info("embedding model ready", "model", name, "dimension", m.Dimension)
		}
		return m, nil
	}
	return ai.Model{}, fmt.Errorf("%w: %w", ErrNoModelAvailable, errors.Join(errs...))
}

func (r *Router) healthCheck(ctx context.Context, m ai.Model) error {
	client, err := r.client(ctx, m)
	if err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	vec, err := client.EmbedText(ctx, healthCheckText)
	if err != nil {
		return err
	}
	if len(vec) != m.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), m.Dimension)
	}
	return nil
}

// EmbedBatch embeds texts with model, retrying the same model up to
// maxRetries attempts with a fixed delay. On success it returns exactly
// len(texts) vectors in input order. On failure it returns nil and false;
// it never returns a partial result and never switches models.
func (r *Router) EmbedBatch(ctx context.Context, texts []string, model string, maxRetries int) ([][]float32, bool) {
	m, err := Lookup(model)
	if err != nil {
		r.logger.Error("embed batch with unknown model", "model", model, "err", err)
		return nil, false
	}
	if len(texts) == 0 {
		return [][]float32{}, true
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	client, err := r.client(ctx, m)
	if err != nil {
		r.logger.Error("creating embedding client", "model", model, "err", err)
		return nil, false
	}

	var vectors [][]float32
	err = ai.RetryFixed(ctx, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := client.EmbedTexts(ctx, texts)
		if err != nil {
			if ai.IsRateLimited(err) && ratelimit.PauseIfSupported(r.limiter, r.throttle) {
				r.logger.Warn("provider throttling, pausing embedding calls", "model", model, "pause", r.throttle)
			}
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("%w: got %d, want %d", ErrVectorCount, len(out), len(texts))
		}
		for i, v := range out {
			if len(v) != m.Dimension {
				return fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimension, i, len(v), m.Dimension)
			}
		}
		vectors = out
		return nil
	}, maxRetries, r.retryDelay)

	if err != nil {
		r.logger.Warn("embedding batch failed", "model", model, "texts", len(texts), "attempts", maxRetries, "err", err)
		return nil, false
	}
	return vectors, true
}

// EmbedQuery embeds a search query, using the provider's query encoding
// when it has one.
func (r *Router) EmbedQuery(ctx context.Context, text, model string) ([]float32, error) {
	m, err := Lookup(model)
	if err != nil {
		return nil, err
	}
	client, err := r.client(ctx, m)
	if err != nil {
		return nil, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if q, ok := client.(ai.QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	return client.EmbedText(ctx, text)
}

// client returns the cached client for m, creating it on first use.
// Creation happens outside the lock.
func (r *Router) client(ctx context.Context, m ai.Model) (ai.Embedder, error) {
	r.mu.Lock()
	c, ok := r.clients[m.Name]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	created, err := r.factory(ctx, m)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[m.Name]; ok {
		closeClient(created)
		return existing, nil
	}
	r.clients[m.Name] = created
	return created, nil
}

// Close releases every cached client that holds resources.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, c := range r.clients {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		delete(r.clients, name)
	}
	return errors.Join(errs...)
}

func closeClient(c ai.Embedder) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}
