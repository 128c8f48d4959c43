package ingest

import "unicode/utf8"

// DefaultMaxChars bounds the article text sent to the model.
const DefaultMaxChars = 150_000

// Truncate returns at most maxChars characters of text and whether anything
// was cut. Characters are runes, so multi-byte sequences are never split.
// maxChars <= 0 means DefaultMaxChars.
func Truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(text) <= maxChars {
		return text, false
	}

	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i], true
		}
		n++
	}
	return text, false
}

// RuneCount reports the number of characters in text.
func RuneCount(text string) int {
	return utf8.RuneCountInString(text)
}
