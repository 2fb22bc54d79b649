package keywords

import (
	"github.com/jdkato/prose/v2"
)

// Token is a tagged word.
type Token struct {
	Text string
	Tag  string
}

// Tagger assigns Penn Treebank part-of-speech tags to the words of text.
type Tagger interface {
	Tag(text string) ([]Token, error)
}

// ProseTagger tags text with the prose averaged perceptron model.
type ProseTagger struct{}

var _ Tagger = ProseTagger{}

// Tag tokenizes and tags text. Sentence segmentation and entity
// extraction are disabled.
func (ProseTagger) Tag(text string) ([]Token, error) {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}
	toks := doc.Tokens()
	out := make([]Token, len(toks))
	for i, t := range toks {
		out[i] = Token{Text: t.Text, Tag: t.Tag}
	}
	return out, nil
}
