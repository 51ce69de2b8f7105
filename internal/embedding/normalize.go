package embedding

import (
	"strings"

	"golang.org/x/text/width"
)

var punctuationFolder = strings.NewReplacer(
	"！", "!",
	"？", "?",
	"：", ":",
	"；", ";",
	"（", "(",
	"）", ")",
	"［", "[",
	"］", "]",
	"｛", "{",
	"｝", "}",
	"　", " ",
)

// Normalize folds full-width punctuation and alphanumerics to ASCII, half-width katakana
// to full-width, collapses whitespace runs to a single space and trims the result.
// Japanese sentence punctuation such as 。 and 、 is kept as is.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = punctuationFolder.Replace(text)
	text = width.Fold.String(text)
	return strings.Join(strings.Fields(text), " ")
}
