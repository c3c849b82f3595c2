package rag

import "strings"

// ExtractKeywords tokenizes query text for the lexical stage: non-word
// characters are stripped and tokens of two characters or fewer are
// dropped. An empty result means the lexical stage has nothing to
// match on.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_')
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		keywords = append(keywords, strings.ToLower(f))
	}
	return keywords
}
