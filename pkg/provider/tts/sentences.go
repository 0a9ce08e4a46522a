package tts

import (
	"context"
	"strings"
	"unicode"
)

// Sentences accumulates text fragments and emits complete, trimmed sentences.
// A sentence ends at '.', '!' or '?' followed by whitespace or the end of the
// buffered text. Whatever remains when text closes is emitted as a final
// sentence. The returned channel is closed when text is closed or ctx is
// cancelled.
func Sentences(ctx context.Context, text <-chan string) <-chan string {
	out := make(chan string, 4)
	go func() {
		defer close(out)
		var buf strings.Builder
		emit := func(s string) bool {
			if s == "" {
				return true
			}
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					emit(strings.TrimSpace(buf.String()))
					return
				}
				buf.WriteString(fragment)
				for {
					s := buf.String()
					idx := FindSentenceBoundary(s)
					if idx < 0 {
						break
					}
					buf.Reset()
					buf.WriteString(s[idx+1:])
					if !emit(strings.TrimSpace(s[:idx+1])) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FindSentenceBoundary returns the index of the first sentence-ending character
// ('.', '!', '?') that is either at the end of s or immediately followed by
// whitespace, or -1. "Dr.Smith" and "3.14" are not boundaries.
func FindSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
