package search

import "strings"

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "how": true, "does": true, "which": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}`*#"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// containsAllQueryWords checks if all query words (after filtering) appear in the document
func containsAllQueryWords(document string, queryWords []string) bool {
	if len(queryWords) == 0 {
		return false
	}
	docWords := wordSet(tokenizeAndFilter(document))
	for _, qWord := range queryWords {
		if !docWords[qWord] {
			return false
		}
	}
	return true
}

// matchingKeywords returns the keywords whose every word occurs in the query.
func matchingKeywords(keywords []string, queryWords map[string]bool) []string {
	var hits []string
	for _, kw := range keywords {
		words := tokenizeAndFilter(kw)
		if len(words) == 0 {
			continue
		}
		all := true
		for _, w := range words {
			if !queryWords[w] {
				all = false
				break
			}
		}
		if all {
			hits = append(hits, kw)
		}
	}
	return hits
}
