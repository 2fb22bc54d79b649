package chunker

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

func recursiveSplit(text string, p Params) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.ChunkSize),
		textsplitter.WithChunkOverlap(p.ChunkOverlap),
		textsplitter.WithSeparators(p.Separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
		textsplitter.WithKeepSeparator(true),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	return nonBlank(segments), nil
}
