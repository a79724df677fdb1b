package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?P<year>\d{4})-(?P<month>\d{1,2})-(?P<day>\d{1,2})\b`),
		regexp.MustCompile(`\b(?P<year>\d{4})/(?P<month>\d{1,2})/(?P<day>\d{1,2})\b`),
		regexp.MustCompile(`\b(?P<day>\d{1,2})[./-](?P<month>\d{1,2})[./-](?P<year>\d{4}|\d{2})\b`),
	}
	referencePattern = regexp.MustCompile(`(?P<ref>[A-Za-z0-9][A-Za-z0-9/-]*\d[A-Za-z0-9/-]*)`)
	quantityPattern  = regexp.MustCompile(`^(?P<qty>\d+)\s*[xX×*]\s+(?P<name>.+)$`)
)

// itemStops end an item list.
var itemStops = []keywords.Category{keywords.Total, keywords.Subtotal, keywords.Tax, keywords.TaxAmount, keywords.Payment}

// merchantRows bounds how far down the page a merchant name is looked for.
const merchantRows = 5

// findDate returns the first date in text as YYYY-MM-DD, or "". Day-first
// readings are preferred; a month above twelve flips to month-first.
func findDate(text string) string {
	for _, p := range datePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[p.SubexpIndex("year")])
		month, _ := strconv.Atoi(m[p.SubexpIndex("month")])
		day, _ := strconv.Atoi(m[p.SubexpIndex("day")])
		if year < 100 {
			year += 2000
		}
		if iso, ok := isoDate(year, month, day); ok {
			return iso
		}
		if iso, ok := isoDate(year, day, month); ok {
			return iso
		}
	}
	return ""
}

func isoDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// fieldParser reads the descriptive fields of a document.
type fieldParser struct {
	reg   *keywords.Registry
	lang  keywords.Language
	rows  []analyzedRow
	notes *notes
}

func (p fieldParser) parse(f *Fields) {
	f.MerchantName = p.merchant()
	if f.MerchantName != "" {
		p.notes.pattern("field:merchant_name")
	}
	for _, r := range p.rows {
		if d := findDate(r.Text); d != "" {
			f.Date = d
			p.notes.pattern("field:date")
			break
		}
	}
	f.PaymentMethod = p.paymentMethod()
	if f.PaymentMethod != "" {
		p.notes.pattern("field:payment_method")
	}
	f.ReceiptNumber = p.receiptNumber()
	if f.ReceiptNumber != "" {
		p.notes.pattern("field:receipt_number")
	}
	f.DocumentType = p.documentType()
}

// merchant is the first row near the top holding words and no numbers,
// dates or keywords.
func (p fieldParser) merchant() string {
	for i, r := range p.rows {
		if i >= merchantRows {
			break
		}
		if len(r.Tokens) > 0 || r.Features.HasDate || len(r.Features.Categories) > 0 {
			continue
		}
		letters := 0
		for _, c := range r.Text {
			if unicode.IsLetter(c) {
				letters++
			}
		}
		if letters >= 3 {
			return strings.TrimSpace(r.Text)
		}
	}
	return ""
}

// paymentMethod reads the first payment row as card, cash or mobile. An
// unrecognized method is reported as printed.
func (p fieldParser) paymentMethod() string {
	for _, r := range p.rows {
		if !hasCategory(r.Features, keywords.Payment) {
			continue
		}
		if method, ok := p.reg.PaymentMethod(r.Normalized); ok {
			return method
		}
		if _, after, found := strings.Cut(r.Text, ":"); found {
			if v := strings.TrimSpace(after); v != "" {
				return strings.ToLower(v)
			}
		}
	}
	return ""
}

// receiptNumber is the last reference-like token on a receipt-number row.
func (p fieldParser) receiptNumber() string {
	for _, r := range p.rows {
		m, ok := p.reg.Find(r.Normalized, p.lang, keywords.ReceiptNumber)
		if !ok {
			continue
		}
		refs := referencePattern.FindAllString(r.Text, -1)
		for i := len(refs) - 1; i >= 0; i-- {
			if findDate(refs[i]) == "" && keywords.Normalize(refs[i]) != m.Keyword {
				return refs[i]
			}
		}
	}
	return ""
}

// documentType compares receipt and invoice vocabulary hits.
func (p fieldParser) documentType() string {
	var receipt, invoice int
	for _, r := range p.rows {
		if hasCategory(r.Features, keywords.ReceiptSpecific) {
			receipt++
		}
		if hasCategory(r.Features, keywords.InvoiceSpecific) {
			invoice++
		}
	}
	if invoice > receipt {
		return "invoice"
	}
	return "receipt"
}

// items reads item lines between an item header row and the first amount
// label, optionally prefixed by a quantity such as "2 x".
func (p fieldParser) items(format keywords.NumberFormat, consumed map[int]bool) []ReceiptItem {
	start := -1
	for i, r := range p.rows {
		if _, ok := p.reg.Head(r.Normalized, p.lang, keywords.ItemHeader); ok && len(r.Tokens) == 0 {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var items []ReceiptItem
	for _, r := range p.rows[start:] {
		if consumed[r.Index] {
			break
		}
		if _, ok := p.reg.Head(r.Normalized, p.lang, itemStops...); ok {
			break
		}
		amts := r.amountTokens()
		if len(amts) == 0 {
			continue
		}
		last := amts[len(amts)-1]
		price, err := parseToken(last, format)
		if err != nil {
			p.notes.warn("unparseable amount: %s", last.Raw)
			continue
		}
		name := strings.TrimFunc(r.Text[:last.Start], func(c rune) bool {
			return unicode.IsSpace(c) || unicode.IsSymbol(c) || c == '-' || c == ':'
		})
		name = trimCurrency(name, format.Currencies)
		if !strings.ContainsFunc(name, unicode.IsLetter) {
			continue
		}

		qty := 1.0
		if m := quantityPattern.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[quantityPattern.SubexpIndex("qty")]); err == nil && n > 0 {
				qty = float64(n)
				name = m[quantityPattern.SubexpIndex("name")]
			}
		}
		total := NewMoney(price)
		unit := NewMoney(price.Div(decimal.NewFromFloat(qty)).Round(2))
		items = append(items, ReceiptItem{Name: name, Quantity: qty, UnitPrice: &unit, TotalPrice: &total})
	}
	if len(items) > 0 {
		p.notes.pattern("items:ocr-lines")
	}
	return items
}

func trimCurrency(s string, currencies []string) string {
	for _, c := range currencies {
		if strings.HasSuffix(strings.ToLower(s), strings.ToLower(c)) {
			s = strings.TrimSpace(s[:len(s)-len(c)])
		}
	}
	return s
}

func hasCategory(f Features, c keywords.Category) bool {
	for _, k := range f.Categories {
		if k == c {
			return true
		}
	}
	return false
}
