package content

import (
	"regexp"
	"strings"
)

// sentenceTerminators matches runs of Japanese and Latin sentence-ending punctuation.
var sentenceTerminators = regexp.MustCompile(`[。．！？.!?]+`)

// SplitSentences splits text at sentence-ending punctuation, drops the terminators and
// discards fragments that are empty after trimming. It is a punctuation heuristic, not a
// linguistic sentence boundary detector: a decimal point such as "3.5" also splits.
func SplitSentences(text string) []string {
	var sentences []string
	for _, fragment := range sentenceTerminators.Split(text, -1) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		sentences = append(sentences, fragment)
	}
	return sentences
}
