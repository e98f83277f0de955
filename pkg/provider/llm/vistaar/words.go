package vistaar

import (
	"strings"
	"unicode/utf8"
)

// wordScanner incrementally splits a byte stream into whole words. Bytes are
// decoded as UTF-8 with invalid sequences skipped rather than aborting the
// stream; an incomplete trailing rune is held back until the next write.
// Words are emitted as "word + trailing space" tokens as soon as a whitespace
// or newline boundary is seen; anything left at end of stream is returned by
// flush.
type wordScanner struct {
	pending []byte
	text    string
}

// write consumes the next chunk of raw bytes and returns the complete word
// tokens it unlocked, in stream order.
func (s *wordScanner) write(p []byte) []string {
	s.pending = append(s.pending, p...)

	var decoded strings.Builder
	for len(s.pending) > 0 {
		r, size := utf8.DecodeRune(s.pending)
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(s.pending) && len(s.pending) < utf8.UTFMax {
				// Possibly a rune split across reads; wait for more bytes.
				break
			}
			// Genuinely invalid byte: skip it.
			s.pending = s.pending[1:]
			continue
		}
		decoded.WriteRune(r)
		s.pending = s.pending[size:]
	}
	s.text += decoded.String()

	var words []string
	for {
		idx := strings.IndexAny(s.text, " \n")
		if idx < 0 {
			break
		}
		word := strings.TrimSpace(s.text[:idx])
		s.text = s.text[idx+1:]
		if word != "" {
			words = append(words, word+" ")
		}
	}
	return words
}

// flush returns any buffered remainder as a final token, or "" when the
// stream ended on a word boundary.
func (s *wordScanner) flush() string {
	rest := strings.TrimSpace(s.text)
	s.text = ""
	return rest
}
