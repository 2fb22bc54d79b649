package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragline/tokenize"
)

// tokenWindows slices the token stream of text into windows of size tokens
// advancing by size-overlap. The last window may be shorter.
func tokenWindows(tok tokenize.Tokenizer, text string, size, overlap int) []string {
	ids := tok.Encode(text)
	return windows(len(ids), size, overlap, func(start, end int) string {
		return decodeWindow(tok, ids, start, end)
	})
}

// decodeWindow decodes ids[start:end] on rune boundaries. BPE tokens can
// split a multibyte rune: a rune cut by the end edge is completed from the
// following tokens, and the tail bytes of a rune cut by the start edge are
// dropped since the previous window owns that rune.
func decodeWindow(tok tokenize.Tokenizer, ids []int, start, end int) string {
	decode := func(end int) string {
		s := tok.Decode(ids[start:end])
		if start > 0 {
			s = trimRuneTail(s)
		}
		return s
	}
	s := decode(end)
	if utf8.ValidString(s) {
		return s
	}
	if lead, size := splitRune(s); size > 0 {
		for extra := 1; extra <= utf8.UTFMax && end+extra <= len(ids); extra++ {
			ext := decode(end + extra)
			if cut := lead + size; cut <= len(ext) && strings.HasPrefix(ext, s) && utf8.ValidString(ext[:cut]) {
				s = ext[:cut]
				break
			}
		}
	}
	return strings.ToValidUTF8(s, "")
}

// trimRuneTail drops leading continuation bytes.
func trimRuneTail(s string) string {
	i := 0
	for i < len(s) && i < utf8.UTFMax && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// splitRune reports the offset and full encoded size of an incomplete rune
// at the end of s, or a zero size when s ends on a rune boundary.
func splitRune(s string) (lead, size int) {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if utf8.FullRuneInString(s[i:]) {
			return 0, 0
		}
		return i, leadSize(s[i])
	}
	return 0, 0
}

func leadSize(b byte) int {
	switch {
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	}
	return 1
}

// lineWindows slices text into windows of size lines advancing by
// size-overlap. Line terminators stay attached to their lines.
func lineWindows(text string, size, overlap int) []string {
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return windows(len(lines), size, overlap, func(start, end int) string {
		return strings.Join(lines[start:end], "")
	})
}

func windows(n, size, overlap int, cut func(start, end int) string) []string {
	step := size - overlap
	var out []string
	for start := 0; start < n; start += step {
		end := min(start+size, n)
		out = append(out, cut(start, end))
		if end == n {
			break
		}
	}
	return nonBlank(out)
}
