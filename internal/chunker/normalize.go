package chunker

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeUnicode applies NFKC canonical normalization.
func normalizeUnicode(text string) string {
	return norm.NFKC.String(text)
}

// stripControlChars removes non-printable runes while keeping whitespace.
func stripControlChars(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
}

// collapseWhitespace folds runs of whitespace into single spaces and trims.
func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Normalize runs the full normalization pipeline: unicode canonical
// normalization, control-character stripping, whitespace collapsing, in
// that order. Exposed standalone so recall queries normalize text the
// same way ingestion does.
func Normalize(text string) string {
	return collapseWhitespace(stripControlChars(normalizeUnicode(text)))
}
