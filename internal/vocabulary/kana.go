package vocabulary

import (
	"strings"
	"unicode"
)

const katakanaToHiraganaOffset = 'ァ' - 'ぁ'

// KatakanaToHiragana converts katakana letters to hiragana and leaves everything else,
// including the prolonged sound mark, unchanged.
func KatakanaToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - katakanaToHiraganaOffset
		}
		return r
	}, s)
}

func isKana(s string) bool {
	for _, r := range s {
		if !unicode.In(r, unicode.Hiragana, unicode.Katakana) && r != 'ー' {
			return false
		}
	}
	return s != ""
}
