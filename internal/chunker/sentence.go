package chunker

import (
	"strings"
	"unicode"
)

// isSentenceTerminator reports whether r ends a sentence. CJK full-width
// terminators are included so multi-locale documents split sensibly.
func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences splits text into sentences on terminator punctuation.
// A terminator only closes a sentence when followed by whitespace or end
// of input, so decimals and dotted abbreviations inside a token stay
// together.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	var current strings.Builder

	for i, r := range runes {
		current.WriteRune(r)
		if !isSentenceTerminator(r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
