package core

import (
	"strings"
	"unicode"
)

// Chunker splits transcript text into overlapping fixed-size segments.
// Pure and deterministic: same text, same chunks.
type Chunker struct {
	size    int
	overlap int
}

// Span is one chunk of a transcript together with its rune offset, so the
// indexer can trace every chunk back to where in the sermon it came from.
type Span struct {
	Text        string
	StartOffset int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split produces overlapping spans of at most c.size runes. Window ends snap
// back to the nearest whitespace so chunks prefer to break between words.
// Consecutive spans overlap by roughly c.overlap runes, so a concept spanning
// a boundary stays searchable in at least one chunk. Empty text yields no
// spans; text no longer than the window yields a single span equal to the
// input.
func (c *Chunker) Split(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []Span{{Text: text, StartOffset: 0}}
	}

	var spans []Span
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			spans = append(spans, Span{Text: string(runes[start:]), StartOffset: start})
			break
		}

		// Snap back to the last whitespace in the window, but never shrink
		// the window below half its size on account of one long run.
		cut := end
		for j := end; j > start+c.size/2; j-- {
			if unicode.IsSpace(runes[j-1]) {
				cut = j
				break
			}
		}
		spans = append(spans, Span{Text: string(runes[start:cut]), StartOffset: start})

		next := cut - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}
