package extraction

import (
	"strings"
	"unicode"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

// neutralWeight is the position weight of rows without geometry.
const neutralWeight = 0.5

// Features describes a row by position and content.
type Features struct {
	HasBox         bool                `json:"hasBox"`
	RelX           float64             `json:"relX"`
	RelY           float64             `json:"relY"`
	RelWidth       float64             `json:"relWidth"`
	RelHeight      float64             `json:"relHeight"`
	TopThird       bool                `json:"topThird"`
	BottomThird    bool                `json:"bottomThird"`
	RightHalf      bool                `json:"rightHalf"`
	PositionWeight float64             `json:"positionWeight"`
	AmountCount    int                 `json:"amountCount"`
	PercentCount   int                 `json:"percentCount"`
	HasCurrency    bool                `json:"hasCurrency"`
	HasDate        bool                `json:"hasDate"`
	DigitRatio     float64             `json:"digitRatio"`
	UpperRatio     float64             `json:"upperRatio"`
	Categories     []keywords.Category `json:"categories,omitempty"`
	OCRConfidence  float64             `json:"ocrConfidence"`
}

// page is the extent rows are positioned against.
type page struct {
	Width, Height float64
}

func (p page) valid() bool {
	return p.Width > 0 && p.Height > 0
}

// measurePage uses the declared page size, or the union of row boxes.
func measurePage(doc Document, rows []Row) page {
	if doc.PageWidth > 0 && doc.PageHeight > 0 {
		return page{Width: doc.PageWidth, Height: doc.PageHeight}
	}
	var p page
	for _, r := range rows {
		if r.Box == nil {
			continue
		}
		p.Width = max(p.Width, r.Box.Right())
		p.Height = max(p.Height, r.Box.Bottom())
	}
	return p
}

// analyzedRow is a row with its normalized text, numeric tokens and features.
type analyzedRow struct {
	Row
	Normalized string
	Tokens     []numberToken
	Features   Features
}

// amountTokens returns the row's non-percentage tokens.
func (r analyzedRow) amountTokens() []numberToken {
	return amounts(r.Tokens)
}

// FeatureExtractor derives per-row features used by the candidate producers.
type FeatureExtractor struct {
	reg *keywords.Registry
}

// NewFeatureExtractor returns an extractor matching keywords from reg.
func NewFeatureExtractor(reg *keywords.Registry) *FeatureExtractor {
	return &FeatureExtractor{reg: reg}
}

func (fe *FeatureExtractor) analyze(rows []Row, pg page, lang keywords.Language, format keywords.NumberFormat) []analyzedRow {
	out := make([]analyzedRow, 0, len(rows))
	for _, r := range rows {
		ar := analyzedRow{
			Row:        r,
			Normalized: keywords.Normalize(r.Text),
			Tokens:     scanNumbers(r.Text, format, format.Currencies),
		}
		ar.Features = fe.features(ar, pg, lang, format)
		out = append(out, ar)
	}
	return out
}

func (fe *FeatureExtractor) features(r analyzedRow, pg page, lang keywords.Language, format keywords.NumberFormat) Features {
	f := Features{
		PositionWeight: neutralWeight,
		PercentCount:   len(percents(r.Tokens)),
		AmountCount:    len(r.amountTokens()),
		HasCurrency:    hasCurrency(r.Text, format.Currencies),
		HasDate:        findDate(r.Text) != "",
		OCRConfidence:  r.Confidence,
	}

	var letters, digits, upper, total int
	for _, c := range r.Text {
		if unicode.IsSpace(c) {
			continue
		}
		total++
		switch {
		case unicode.IsDigit(c):
			digits++
		case unicode.IsLetter(c):
			letters++
			if unicode.IsUpper(c) {
				upper++
			}
		}
	}
	if total > 0 {
		f.DigitRatio = float64(digits) / float64(total)
	}
	if letters > 0 {
		f.UpperRatio = float64(upper) / float64(letters)
	}

	for _, cat := range keywords.Categories() {
		if fe.reg.Has(r.Normalized, lang, cat) {
			f.Categories = append(f.Categories, cat)
		}
	}

	if r.Box == nil || !pg.valid() {
		return f
	}
	f.HasBox = true
	f.RelX = r.Box.X / pg.Width
	f.RelY = r.Box.Y / pg.Height
	f.RelWidth = r.Box.Width / pg.Width
	f.RelHeight = r.Box.Height / pg.Height

	centerY := r.Box.CenterY() / pg.Height
	f.TopThird = centerY < 1.0/3
	f.BottomThird = centerY >= 2.0/3
	f.RightHalf = r.Box.CenterX()/pg.Width >= 0.5
	f.PositionWeight = positionWeight(f)
	return f
}

// positionWeight favours rows low on the page and to the right, where
// totals are printed.
func positionWeight(f Features) float64 {
	if !f.HasBox {
		return neutralWeight
	}
	w := 0.5
	if f.TopThird {
		w -= 0.1
	}
	if f.BottomThird {
		w += 0.3
	}
	if f.RightHalf {
		w += 0.2
	}
	return w
}

func hasCurrency(text string, currencies []string) bool {
	lower := strings.ToLower(text)
	for _, c := range currencies {
		if strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// xAt estimates the horizontal page position of text[start:end], where text
// is the row text (or its normalized form). Positions inside a member are
// interpolated across the member's box.
func (r analyzedRow) xAt(start, end int, normalized bool) (float64, bool) {
	mid := float64(start+end) / 2
	pos := 0
	for _, m := range r.Members {
		text := strings.TrimSpace(m.Text)
		if normalized {
			text = keywords.Normalize(m.Text)
		}
		spanEnd := pos + len(text)
		if mid <= float64(spanEnd) || pos >= len(r.Text) {
			if m.BoundingBox == nil || len(text) == 0 {
				return 0, false
			}
			frac := min(max((mid-float64(pos))/float64(len(text)), 0), 1)
			return m.BoundingBox.X + frac*m.BoundingBox.Width, true
		}
		pos = spanEnd + 1
	}
	return 0, false
}
