package embedding

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/ragline/ai"
)

// models maps every supported embedding model to its provider and
// output dimensionality.
var models = map[string]ai.Model{
	"text-embedding-3-large": {Name: "text-embedding-3-large", Provider: ai.ProviderOpenAI, Dimension: 3072},
	"text-embedding-3-small": {Name: "text-embedding-3-small", Provider: ai.ProviderOpenAI, Dimension: 1536},
	"text-embedding-ada-002": {Name: "text-embedding-ada-002", Provider: ai.ProviderOpenAI, Dimension: 1536},
	"text-embedding-004":     {Name: "text-embedding-004", Provider: ai.ProviderGoogle, Dimension: 768},
	"gemini-embedding-001":   {Name: "gemini-embedding-001", Provider: ai.ProviderGoogle, Dimension: 3072},
	"multilingual-e5-small":  {Name: "multilingual-e5-small", Provider: ai.ProviderLocal, Dimension: 384},
	"multilingual-e5-base":   {Name: "multilingual-e5-base", Provider: ai.ProviderLocal, Dimension: 768},
}

// Lookup returns the table entry for name.
func Lookup(name string) (ai.Model, error) {
	m, ok := models[strings.TrimSpace(name)]
	if !ok {
		return ai.Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Models returns the known model names in sorted order.
func Models() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
