package summarizer

import (
	"fmt"
	"strings"
)

const contextualPromptTemplate = `<document>
%s
</document>

Here is a chunk from the document above:

<chunk>
%s
</chunk>

Write one or two sentences that situate this chunk within the overall document, so the chunk can be found by search queries that use vocabulary from elsewhere in the document. Mention the document's subject and what this chunk contributes to it. Answer with the sentences only, no preamble.`

// buildPrompt renders the contextual summary prompt. documentContext is
// cut to budget runes, keeping the beginning of the document.
func buildPrompt(documentContext, chunk string, budget int) string {
	return fmt.Sprintf(contextualPromptTemplate,
		strings.TrimSpace(truncateRunes(documentContext, budget)),
		strings.TrimSpace(chunk))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
