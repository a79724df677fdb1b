package keywords

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics and collapses runs of whitespace
// into a single space. Keyword tables and OCR text are both compared in this
// form, so "YHTEENSÄ" and "yhteensa" are equal.
func Normalize(s string) string {
	// transform.Chain keeps state and is not safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// TrimLeading drops leading characters that are neither letters nor digits,
// such as bullets or asterisks OCR picks up before a label.
func TrimLeading(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atBoundary reports whether text[start:end] is delimited by non-word runes
// (or the ends of text) on both sides.
func atBoundary(text string, start, end int) bool {
	if start > 0 {
		prev := lastRune(text[:start])
		if isWordRune(prev) && isWordRune(firstRune(text[start:end])) {
			return false
		}
	}
	if end < len(text) {
		next := firstRune(text[end:])
		if isWordRune(next) && isWordRune(lastRune(text[start:end])) {
			return false
		}
	}
	return true
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	rs := []rune(s)
	if len(rs) == 0 {
		return 0
	}
	return rs[len(rs)-1]
}
