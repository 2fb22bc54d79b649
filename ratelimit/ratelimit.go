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

// Package ratelimit provides the requests-per-minute limiters shared by every
// caller of an external model service.
//
// A Limiter is constructed once per provider quota and passed by reference
// to every component that issues calls against that quota, so concurrent
// documents and chunks draw from the same budget. Tests substitute Noop.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidRate is returned for non-positive request rates.
var ErrInvalidRate = errors.New("requests per minute must be positive")

// Limiter gates outbound provider calls.
type Limiter interface {
	// Wait blocks until a call may proceed or ctx is done.
	Wait(ctx context.Context) error
}

// RateLimiter is a token bucket limiter with an optional reactive pause,
// set when a provider reports it is throttling us.
type RateLimiter struct {
	bucket *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

var _ Limiter = (*RateLimiter)(nil)

// New creates a limiter allowing requestsPerMinute calls with the given burst.
// A burst below 1 is raised to 1.
func New(requestsPerMinute float64, burst int) (*RateLimiter, error) {
	if requestsPerMinute <= 0 {
		return nil, ErrInvalidRate
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(rate.Limit(requestsPerMinute/60), burst),
	}, nil
}

// Wait blocks until the bucket yields a token and any pause has elapsed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	until := r.pausedUntil
	r.mu.Unlock()

	if wait := time.Until(until); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.bucket.Wait(ctx)
}

// Pause holds every caller for d, extending any pause already in effect.
func (r *RateLimiter) Pause(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := time.Now().Add(d); until.After(r.pausedUntil) {
		r.pausedUntil = until
	}
}

// Pauser is implemented by limiters that accept a reactive pause.
type Pauser interface {
	Pause(d time.Duration)
}

var _ Pauser = (*RateLimiter)(nil)

// PauseIfSupported pauses l for d when l is a Pauser and reports whether it did.
func PauseIfSupported(l Limiter, d time.Duration) bool {
	p, ok := l.(Pauser)
	if !ok || d <= 0 {
		return false
	}
	p.Pause(d)
	return true
}

// Noop never blocks.
type Noop struct{}

var _ Limiter = Noop{}

// Wait returns ctx.Err() without blocking.
func (Noop) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Counting wraps a Limiter and counts Wait calls.
type Counting struct {
	Limiter Limiter

	mu    sync.Mutex
	calls int
}

// Wait records the call and delegates.
func (c *Counting) Wait(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Limiter == nil {
		return ctx.Err()
	}
	return c.Limiter.Wait(ctx)
}

// Calls returns the number of Wait calls so far.
func (c *Counting) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
