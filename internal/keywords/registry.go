package keywords

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultTables []byte

// Language is an ISO-639-1 code, or Unknown.
type Language string

const (
	English Language = "en"
	Finnish Language = "fi"
	Swedish Language = "sv"
	French  Language = "fr"
	German  Language = "de"
	Italian Language = "it"
	Spanish Language = "es"
	Unknown Language = "unknown"
)

// Languages returns the supported languages in detection tie-break order.
func Languages() []Language {
	return []Language{English, Finnish, Swedish, French, German, Italian, Spanish}
}

// ParseLanguage maps a caller-supplied hint to a supported language.
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range Languages() {
		if string(l) == s {
			return l, true
		}
	}
	return Unknown, false
}

// Category is a semantic keyword class.
type Category string

const (
	Total           Category = "total"
	Subtotal        Category = "subtotal"
	Tax             Category = "tax"
	TaxRate         Category = "tax_rate"
	TaxAmount       Category = "tax_amount"
	ItemHeader      Category = "item_header"
	Payment         Category = "payment"
	ReceiptSpecific Category = "receipt_specific"
	InvoiceSpecific Category = "invoice_specific"
	ReceiptNumber   Category = "receipt_number"
)

// Categories returns every category in a fixed order.
func Categories() []Category {
	return []Category{Total, Subtotal, Tax, TaxRate, TaxAmount, ItemHeader, Payment, ReceiptSpecific, InvoiceSpecific, ReceiptNumber}
}

// Column is a tax-table column kind.
type Column string

const (
	ColumnRate  Column = "rate"
	ColumnNet   Column = "net"
	ColumnTax   Column = "tax"
	ColumnGross Column = "gross"
)

func columns() []Column {
	return []Column{ColumnRate, ColumnNet, ColumnTax, ColumnGross}
}

// unknownPenalty scales confidences when the language is not known and
// every table is searched at once.
const unknownPenalty = 0.8

// boundaryBonus is added to matches delimited by non-word characters.
const boundaryBonus = 0.05

// minSubstringLength is the shortest keyword allowed to match inside a word.
const minSubstringLength = 4

// Keyword is a normalized keyword with its base confidence.
type Keyword struct {
	Text       string
	Confidence float64
}

// NumberFormat describes how a language writes amounts.
type NumberFormat struct {
	Decimal    string
	Thousands  string
	Currencies []string
}

// Match is a keyword located in normalized text.
type Match struct {
	Category   Category
	Keyword    string
	Confidence float64
	Start, End int
	Boundary   bool
}

// ColumnMatch is a tax-table column label located in normalized text.
type ColumnMatch struct {
	Column     Column
	Label      string
	Start, End int
}

type tablesFile struct {
	Formats    map[string]formatEntry                `yaml:"formats"`
	Categories map[string]map[string][]keywordEntry `yaml:"categories"`
	Columns    map[string]map[string][]string       `yaml:"columns"`
	Payment    map[string][]string                  `yaml:"payment_methods"`
}

type formatEntry struct {
	Decimal    string   `yaml:"decimal"`
	Thousands  string   `yaml:"thousands"`
	Currencies []string `yaml:"currencies"`
}

type keywordEntry struct {
	Keyword    string  `yaml:"keyword"`
	Confidence float64 `yaml:"confidence"`
}

// Registry holds the keyword, column and number-format tables. It is
// read-only after construction and safe for concurrent use.
type Registry struct {
	categories map[Category]map[Language][]Keyword
	union      map[Category][]Keyword
	columns    map[Column]map[Language][]string
	colUnion   map[Column][]string
	methods    []paymentMethod
	formats    map[Language]NumberFormat
	currencies []string
}

type paymentMethod struct {
	name  string
	words []string
}

// Default parses the embedded keyword tables.
func Default() (*Registry, error) {
	return Parse(defaultTables)
}

// Parse builds a registry from a YAML document in the embedded tables' layout.
func Parse(data []byte) (*Registry, error) {
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding keyword tables: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("keyword tables define no categories")
	}

	r := &Registry{
		categories: make(map[Category]map[Language][]Keyword),
		union:      make(map[Category][]Keyword),
		columns:    make(map[Column]map[Language][]string),
		colUnion:   make(map[Column][]string),
		formats:    make(map[Language]NumberFormat),
	}

	for code, entry := range f.Formats {
		lang, ok := ParseLanguage(code)
		if !ok {
			return nil, fmt.Errorf("number format for unsupported language %q", code)
		}
		r.formats[lang] = NumberFormat{Decimal: entry.Decimal, Thousands: entry.Thousands, Currencies: entry.Currencies}
	}

	for name, byLang := range f.Categories {
		cat := Category(name)
		if !knownCategory(cat) {
			return nil, fmt.Errorf("unknown keyword category %q", name)
		}
		r.categories[cat] = make(map[Language][]Keyword)
		best := make(map[string]float64)
		for code, entries := range byLang {
			lang, ok := ParseLanguage(code)
			if !ok {
				return nil, fmt.Errorf("category %s: unsupported language %q", name, code)
			}
			kws := make([]Keyword, 0, len(entries))
			for _, e := range entries {
				if e.Confidence <= 0 || e.Confidence > 1 {
					return nil, fmt.Errorf("category %s/%s: keyword %q has confidence %v outside (0,1]", name, code, e.Keyword, e.Confidence)
				}
				text := Normalize(e.Keyword)
				kws = append(kws, Keyword{Text: text, Confidence: e.Confidence})
				if e.Confidence > best[text] {
					best[text] = e.Confidence
				}
			}
			sortKeywords(kws)
			r.categories[cat][lang] = kws
		}
		union := make([]Keyword, 0, len(best))
		for text, conf := range best {
			union = append(union, Keyword{Text: text, Confidence: conf * unknownPenalty})
		}
		sortKeywords(union)
		r.union[cat] = union
	}

	for name, byLang := range f.Columns {
		col := Column(name)
		r.columns[col] = make(map[Language][]string)
		seen := make(map[string]bool)
		var union []string
		for code, labels := range byLang {
			lang, ok := ParseLanguage(code)
			if !ok {
				return nil, fmt.Errorf("column %s: unsupported language %q", name, code)
			}
			normalized := make([]string, 0, len(labels))
			for _, l := range labels {
				n := Normalize(l)
				normalized = append(normalized, n)
				if !seen[n] {
					seen[n] = true
					union = append(union, n)
				}
			}
			sortLabels(normalized)
			r.columns[col][lang] = normalized
		}
		sortLabels(union)
		r.colUnion[col] = union
	}

	methodNames := make([]string, 0, len(f.Payment))
	for name := range f.Payment {
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		words := make([]string, 0, len(f.Payment[name]))
		for _, w := range f.Payment[name] {
			words = append(words, Normalize(w))
		}
		sortLabels(words)
		r.methods = append(r.methods, paymentMethod{name: name, words: words})
	}

	seen := make(map[string]bool)
	for _, lang := range Languages() {
		for _, c := range r.formats[lang].Currencies {
			if !seen[c] {
				seen[c] = true
				r.currencies = append(r.currencies, c)
			}
		}
	}
	sortLabels(r.currencies)

	return r, nil
}

func knownCategory(c Category) bool {
	for _, k := range Categories() {
		if k == c {
			return true
		}
	}
	return false
}

// sortKeywords orders longest first so the most specific keyword wins.
func sortKeywords(kws []Keyword) {
	sort.SliceStable(kws, func(i, j int) bool {
		if len(kws[i].Text) != len(kws[j].Text) {
			return len(kws[i].Text) > len(kws[j].Text)
		}
		if kws[i].Confidence != kws[j].Confidence {
			return kws[i].Confidence > kws[j].Confidence
		}
		return kws[i].Text < kws[j].Text
	})
}

func sortLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		if len(labels[i]) != len(labels[j]) {
			return len(labels[i]) > len(labels[j])
		}
		return labels[i] < labels[j]
	})
}

// Keywords returns the keywords of a category for lang, longest first. For
// Unknown it returns the union of every language at reduced confidence.
func (r *Registry) Keywords(c Category, lang Language) []Keyword {
	if lang == Unknown {
		return r.union[c]
	}
	return r.categories[c][lang]
}

// Format returns the number conventions of lang. Unknown yields a format with
// no preferred separators, leaving the parser to infer them.
func (r *Registry) Format(lang Language) NumberFormat {
	if f, ok := r.formats[lang]; ok {
		return f
	}
	return NumberFormat{Currencies: r.currencies}
}

// Currencies returns every currency marker across languages, longest first.
func (r *Registry) Currencies() []string {
	return r.currencies
}

// Head matches normalized text against the given categories at its start,
// after leading punctuation is trimmed. The longest keyword wins.
func (r *Registry) Head(text string, lang Language, cats ...Category) (Match, bool) {
	trimmed := TrimLeading(text)
	offset := len(text) - len(trimmed)
	var best Match
	found := false
	for _, cat := range cats {
		for _, kw := range r.Keywords(cat, lang) {
			if !strings.HasPrefix(trimmed, kw.Text) {
				continue
			}
			m, ok := newMatch(cat, kw, trimmed, 0, len(kw.Text))
			if !ok {
				continue
			}
			m.Start += offset
			m.End += offset
			if !found || better(m, best) {
				best, found = m, true
			}
			break
		}
	}
	return best, found
}

// Find returns the best match of a category anywhere in normalized text.
func (r *Registry) Find(text string, lang Language, c Category) (Match, bool) {
	var best Match
	found := false
	for _, kw := range r.Keywords(c, lang) {
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], kw.Text)
			if i < 0 {
				break
			}
			start := from + i
			if m, ok := newMatch(c, kw, text, start, start+len(kw.Text)); ok {
				if !found || better(m, best) {
					best, found = m, true
				}
				break
			}
			from = start + 1
		}
	}
	return best, found
}

// Has reports whether any keyword of c occurs in normalized text.
func (r *Registry) Has(text string, lang Language, c Category) bool {
	_, ok := r.Find(text, lang, c)
	return ok
}

func newMatch(c Category, kw Keyword, text string, start, end int) (Match, bool) {
	boundary := atBoundary(text, start, end)
	if !boundary && len(kw.Text) < minSubstringLength {
		return Match{}, false
	}
	conf := kw.Confidence
	if boundary {
		conf += boundaryBonus
	}
	if conf > 1 {
		conf = 1
	}
	return Match{Category: c, Keyword: kw.Text, Confidence: conf, Start: start, End: end, Boundary: boundary}, true
}

func better(a, b Match) bool {
	if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
		return la > lb
	}
	if a.Boundary != b.Boundary {
		return a.Boundary
	}
	return a.Confidence > b.Confidence
}

// ColumnAt returns the longest column label that starts at byte offset pos
// of normalized text and ends on a word boundary.
func (r *Registry) ColumnAt(text string, pos int, lang Language) (ColumnMatch, bool) {
	var best ColumnMatch
	found := false
	for _, col := range columns() {
		labels := r.colUnion[col]
		if lang != Unknown {
			labels = r.columns[col][lang]
		}
		for _, label := range labels {
			end := pos + len(label)
			if end > len(text) || text[pos:end] != label || !atBoundary(text, pos, end) {
				continue
			}
			if !found || len(label) > len(best.Label) {
				best = ColumnMatch{Column: col, Label: label, Start: pos, End: end}
				found = true
			}
			break
		}
	}
	return best, found
}

// PaymentMethod names the payment method mentioned in normalized text.
func (r *Registry) PaymentMethod(text string) (string, bool) {
	for _, m := range r.methods {
		for _, w := range m.words {
			for from := 0; from < len(text); {
				i := strings.Index(text[from:], w)
				if i < 0 {
					break
				}
				start := from + i
				if atBoundary(text, start, start+len(w)) {
					return m.name, true
				}
				from = start + 1
			}
		}
	}
	return "", false
}

// DetectLanguage counts, per language, the distinct keywords found on word
// boundaries in text. The language with the most hits wins if it has at
// least two; ties go to the earlier language in Languages().
func (r *Registry) DetectLanguage(text string) Language {
	normalized := Normalize(text)
	best, bestHits := Unknown, 0
	for _, lang := range Languages() {
		seen := make(map[string]bool)
		for _, cat := range Categories() {
			for _, kw := range r.categories[cat][lang] {
				if seen[kw.Text] {
					continue
				}
				if containsWord(normalized, kw.Text) {
					seen[kw.Text] = true
				}
			}
		}
		if len(seen) > bestHits {
			best, bestHits = lang, len(seen)
		}
	}
	if bestHits < 2 {
		return Unknown
	}
	return best
}

func containsWord(text, word string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		if atBoundary(text, start, start+len(word)) {
			return true
		}
		from = start + 1
	}
	return false
}
