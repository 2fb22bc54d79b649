package keywords

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any",
		"are", "aren", "as", "at", "be", "because", "been", "before", "being", "below", "between",
		"both", "but", "by", "can", "could", "did", "does", "doing", "done", "down", "during", "each",
		"either", "else", "etc", "even", "ever", "every", "few", "for", "from", "further", "get",
		"gets", "got", "had", "has", "have", "having", "he", "her", "here", "hers", "herself", "him",
		"himself", "his", "how", "however", "i", "if", "in", "into", "is", "it", "its", "itself",
		"just", "least", "less", "let", "like", "made", "make", "makes", "many", "may", "me",
		"might", "more", "most", "much", "must", "my", "myself", "neither", "no", "nor", "not",
		"now", "of", "off", "often", "on", "once", "one", "only", "or", "other", "others", "our",
		"ours", "ourselves", "out", "over", "own", "per", "rather", "said", "same", "see", "she",
		"should", "since", "so", "some", "such", "than", "that", "the", "their", "theirs", "them",
		"themselves", "then", "there", "these", "they", "thing", "things", "this", "those",
		"through", "thus", "to", "too", "two", "under", "until", "up", "upon", "us", "use", "used",
		"uses", "using", "very", "via", "was", "way", "ways", "we", "well", "were", "what", "when",
		"where", "whether", "which", "while", "who", "whom", "whose", "why", "will", "with",
		"within", "without", "would", "yet", "you", "your", "yours", "yourself", "yourselves",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether w (lowercase) is a stopword.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}
