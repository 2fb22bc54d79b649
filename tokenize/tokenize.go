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

// Package tokenize provides the token streams used by the token-window
// chunker and the local embedding model.
//
// Two tokenizers are available. Tiktoken wraps a named BPE encoding such as
// cl100k_base; its ranks are fetched and cached on first use. Word is an
// offline tokenizer that splits on whitespace boundaries and needs no data
// files.
package tokenize

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer converts text to token ids and back.
// Implementations must be safe for concurrent use.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Name() string
}

// Tiktoken is a Tokenizer backed by a tiktoken BPE encoding.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

var _ Tokenizer = (*Tiktoken)(nil)

// NewTiktoken loads the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// Encode returns the BPE token ids of text. Special token markers in the
// text are encoded as ordinary text.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.EncodeOrdinary(text)
}

// Decode turns token ids back into text.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Name returns the encoding name.
func (t *Tiktoken) Name() string {
	return t.name
}

// Word is an offline Tokenizer. Each token is a run of non-space characters
// together with the whitespace that follows it, so decoding any contiguous
// run of tokens reproduces the original text exactly. Ids are assigned from
// a vocabulary that grows as new words are seen.
type Word struct {
	mu    sync.RWMutex
	ids   map[string]int
	words []string
}

var _ Tokenizer = (*Word)(nil)

// NewWord creates an empty word tokenizer.
func NewWord() *Word {
	return &Word{ids: make(map[string]int)}
}

// Encode splits text into word tokens and returns their ids.
func (w *Word) Encode(text string) []int {
	pieces := SplitWords(text)
	out := make([]int, len(pieces))
	for i, p := range pieces {
		out[i] = w.id(p)
	}
	return out
}

// Decode concatenates the words for tokens. Unknown ids are skipped.
func (w *Word) Decode(tokens []int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var b strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(w.words) {
			b.WriteString(w.words[id])
		}
	}
	return b.String()
}

// Name returns "word".
func (w *Word) Name() string {
	return "word"
}

func (w *Word) id(piece string) int {
	w.mu.RLock()
	id, ok := w.ids[piece]
	w.mu.RUnlock()
	if ok {
		return id
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.ids[piece]; ok {
		return id
	}
	id = len(w.words)
	w.words = append(w.words, piece)
	w.ids[piece] = id
	return id
}

// SplitWords splits text into pieces of non-space runes followed by their
// trailing whitespace. Leading whitespace forms its own piece.
// strings.Join(SplitWords(s), "") == s for every s.
func SplitWords(text string) []string {
	var pieces []string
	start := 0
	inSpace := true
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && inSpace && i > start {
			pieces = append(pieces, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return pieces
}

// Load returns the tiktoken encoding for name, or the word tokenizer when
// name is "word" or empty.
func Load(name string) (Tokenizer, error) {
	if name == "" || name == "word" {
		return NewWord(), nil
	}
	return NewTiktoken(name)
}
