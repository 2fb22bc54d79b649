package ai

import (
	"fmt"
	"strings"
)

// Provider identifies the service that produces embeddings or generations.
// The set is closed: every model in the model table maps to exactly one
// of these variants.
type Provider int

const (
	// ProviderOpenAI is the OpenAI API.
	ProviderOpenAI Provider = iota + 1
	// ProviderGoogle is the Google Generative Language (Gemini) API.
	ProviderGoogle
	// ProviderLocal is a model running in-process.
	ProviderLocal
)

// String returns the provider name used in index names and logs.
func (p Provider) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderGoogle:
		return "google"
	case ProviderLocal:
		return "local"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	return p >= ProviderOpenAI && p <= ProviderLocal
}

// ParseProvider converts a provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "google", "gemini":
		return ProviderGoogle, nil
	case "local":
		return ProviderLocal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// Model describes an embedding model known to the system.
type Model struct {
	Name      string
	Provider  Provider
	Dimension int
}
