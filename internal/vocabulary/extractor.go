// Package vocabulary extracts content words from Japanese transcripts.
package vocabulary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/at-ishikawa/kikitori/internal/content"
)

// contentPOS are the IPA parts of speech kept as vocabulary.
var contentPOS = map[string]bool{
	"名詞":  true,
	"動詞":  true,
	"形容詞": true,
	"副詞":  true,
}

// skippedSubPOS are IPA sub-categories that carry grammar rather than vocabulary.
var skippedSubPOS = map[string]bool{
	"非自立": true,
	"代名詞": true,
	"数":   true,
	"接尾":  true,
}

// Extractor turns text into vocabulary items with the IPA dictionary.
type Extractor struct {
	tokenizer *tokenizer.Tokenizer
}

func NewExtractor() (*Extractor, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("tokenizer.New: %w", err)
	}
	return &Extractor{tokenizer: t}, nil
}

// Extract returns the nouns, verbs, adjectives and adverbs of text by dictionary form,
// most frequent first and otherwise in order of first appearance. Each item's example is
// the first sentence it appears in. Meaning and JLPT level are left empty.
func (e *Extractor) Extract(text string) []content.VocabularyItem {
	var items []*content.VocabularyItem
	index := make(map[string]*content.VocabularyItem)

	for _, sentence := range content.SplitSentences(text) {
		for _, token := range e.tokenizer.Tokenize(sentence) {
			if token.Class == tokenizer.DUMMY {
				continue
			}
			pos := token.POS()
			if len(pos) == 0 || !contentPOS[pos[0]] {
				continue
			}
			if len(pos) > 1 && skippedSubPOS[pos[1]] {
				continue
			}

			word := feature(token.BaseForm())
			if word == "" {
				word = token.Surface
			}
			if strings.TrimSpace(word) == "" {
				continue
			}

			key := word + "\x00" + pos[0]
			if item, ok := index[key]; ok {
				item.Frequency++
				continue
			}
			item := &content.VocabularyItem{
				Word:         word,
				Reading:      KatakanaToHiragana(readingOf(token, word)),
				PartOfSpeech: partOfSpeech(pos),
				Example:      sentence,
				Frequency:    1,
			}
			index[key] = item
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Frequency > items[j].Frequency
	})
	result := make([]content.VocabularyItem, len(items))
	for i, item := range items {
		result[i] = *item
	}
	return result
}

// readingOf returns the reading of the dictionary form when the token is not inflected.
func readingOf(token tokenizer.Token, word string) string {
	reading := feature(token.Reading())
	if token.Surface == word {
		return reading
	}
	// Inflected forms read differently from the dictionary form; only kana forms are known
	if isKana(word) {
		return word
	}
	return ""
}

func feature(value string, ok bool) string {
	if !ok || value == "*" {
		return ""
	}
	return value
}

func partOfSpeech(pos []string) string {
	parts := make([]string, 0, len(pos))
	for _, p := range pos {
		if p == "*" || p == "" {
			break
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "-")
}
