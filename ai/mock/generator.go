package mock

import (
	"context"
	"strings"
	"sync"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// Model is returned by ModelName.
	Model string

	mu        sync.Mutex
	callCount int
	prompts   []string
}

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Model: "mock-generator"}
}

// Generate returns GenerateFunc's result, or the first sentence of the
// last non-empty prompt line.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}

	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if i := strings.Index(last, ". "); i >= 0 {
		last = last[:i+1]
	}
	return "Summary: " + last, nil
}

// ModelName returns the configured model name.
func (m *MockGenerator) ModelName() string {
	return m.Model
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns the prompts received, in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
