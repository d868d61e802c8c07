package translation

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the longest text, in runes, sent in one request
const DefaultChunkSize = 5000

// SplitChunks splits text into pieces of at most size runes, breaking on
// whitespace. A single word longer than size is cut at rune boundaries.
// Text that already fits is returned unchanged as the only chunk.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)

		for wordLen > size {
			flush()
			runes := []rune(word)
			chunks = append(chunks, string(runes[:size]))
			word = string(runes[size:])
			wordLen -= size
		}

		needed := wordLen
		if curLen > 0 {
			needed++
		}
		if curLen+needed > size {
			flush()
			needed = wordLen
		}
		if curLen > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
		curLen += needed
	}
	flush()
	return chunks
}
