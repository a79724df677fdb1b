package extraction

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

// ErrUnparseableAmount is returned for numeric tokens that fit no convention.
var ErrUnparseableAmount = errors.New("unparseable amount")

var (
	amountPattern       = regexp.MustCompile(`(?P<amount>\d+(?:[.,]\d+)*)`)
	spacedAmountPattern = regexp.MustCompile(`(?P<amount>\d{1,3}(?:[ \x{00A0}\x{202F}]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d+)*)`)
)

// numberToken is a numeric token found in row text.
type numberToken struct {
	Raw      string
	Start    int
	End      int
	Percent  bool
	Negative bool
}

// scanNumbers returns the amount and percentage tokens of text in order.
// Digits glued to letters (units such as 1L or 750ml), dates and times are
// skipped.
func scanNumbers(text string, format keywords.NumberFormat, currencies []string) []numberToken {
	pattern := amountPattern
	if format.Thousands == " " {
		pattern = spacedAmountPattern
	}
	group := pattern.SubexpIndex("amount")

	var tokens []numberToken
	for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2*group], loc[2*group+1]
		prev, prev2 := runeBefore(text, start)
		next, next2 := runeAfter(text, end)

		if unicode.IsLetter(prev) && !hasCurrencySuffix(text[:start], currencies) {
			continue
		}
		if unicode.IsLetter(next) && !hasCurrencyPrefix(text[end:], currencies) {
			continue
		}
		if strings.ContainsRune("-/:.", prev) && unicode.IsDigit(prev2) {
			continue
		}
		if strings.ContainsRune("-/:", next) && unicode.IsDigit(next2) {
			continue
		}

		tok := numberToken{Raw: text[start:end], Start: start, End: end}
		rest := strings.TrimLeft(text[end:], " ")
		tok.Percent = strings.HasPrefix(rest, "%")
		if (prev == '-' || prev == '−') && !unicode.IsDigit(prev2) {
			tok.Negative = true
		} else if next == '-' && !unicode.IsDigit(next2) {
			tok.Negative = true
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func runeBefore(s string, i int) (rune, rune) {
	r1, n := utf8.DecodeLastRuneInString(s[:i])
	if n == 0 {
		return 0, 0
	}
	r2, _ := utf8.DecodeLastRuneInString(s[:i-n])
	return r1, r2
}

func runeAfter(s string, i int) (rune, rune) {
	r1, n := utf8.DecodeRuneInString(s[i:])
	if n == 0 {
		return 0, 0
	}
	r2, _ := utf8.DecodeRuneInString(s[i+n:])
	return r1, r2
}

func hasCurrencySuffix(s string, currencies []string) bool {
	s = strings.ToLower(s)
	for _, c := range currencies {
		if strings.HasSuffix(s, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

func hasCurrencyPrefix(s string, currencies []string) bool {
	s = strings.ToLower(s)
	for _, c := range currencies {
		if strings.HasPrefix(s, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// amounts returns the non-percentage tokens.
func amounts(tokens []numberToken) []numberToken {
	var out []numberToken
	for _, t := range tokens {
		if !t.Percent {
			out = append(out, t)
		}
	}
	return out
}

// percents returns the percentage tokens.
func percents(tokens []numberToken) []numberToken {
	var out []numberToken
	for _, t := range tokens {
		if t.Percent {
			out = append(out, t)
		}
	}
	return out
}

// parseToken converts a token to a decimal using format.
func parseToken(t numberToken, format keywords.NumberFormat) (decimal.Decimal, error) {
	d, err := ParseAmount(t.Raw, format)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if t.Negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseAmount parses a numeric string written in the conventions of format.
// When both separators appear the last one is the decimal separator. A lone
// separator followed by exactly three digits is read as a thousands
// separator only when format says so.
func ParseAmount(raw string, format keywords.NumberFormat) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnparseableAmount, raw)
	}

	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	var intPart, fracPart string
	switch {
	case lastDot < 0 && lastComma < 0:
		intPart = s
	case lastDot >= 0 && lastComma >= 0:
		sep, other := lastComma, "."
		if lastDot > lastComma {
			sep, other = lastDot, ","
		}
		groups := strings.Split(s[:sep], other)
		fracPart = s[sep+1:]
		if !groupsOfThree(groups) || strings.ContainsAny(fracPart, ".,") {
			return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnparseableAmount, raw)
		}
		intPart = strings.Join(groups, "")
	default:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		parts := strings.Split(s, sep)
		switch {
		case len(parts) > 2:
			if !groupsOfThree(parts) {
				return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnparseableAmount, raw)
			}
			intPart = strings.Join(parts, "")
		case len(parts[1]) == 3 && thousandsSeparator(sep, format):
			intPart = parts[0] + parts[1]
		default:
			intPart, fracPart = parts[0], parts[1]
		}
	}

	if intPart == "" {
		intPart = "0"
	}
	canonical := intPart
	if fracPart != "" {
		canonical += "." + fracPart
	}
	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnparseableAmount, raw)
	}
	return d, nil
}

// thousandsSeparator reports whether sep groups thousands in format. With no
// known convention a three-digit tail is taken as grouping.
func thousandsSeparator(sep string, format keywords.NumberFormat) bool {
	if format.Decimal == "" && format.Thousands == "" {
		return true
	}
	return format.Thousands == sep
}

func groupsOfThree(parts []string) bool {
	if len(parts[0]) < 1 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// parseRate reads a percentage token such as "24" or "25,5".
func parseRate(t numberToken) (float64, bool) {
	raw := strings.ReplaceAll(t.Raw, ",", ".")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	f := d.InexactFloat64()
	if f < 0 || f > 100 {
		return 0, false
	}
	return f, true
}
