package extraction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

const (
	// rateSumBonus lifts a summed multi-rate tax above its members.
	rateSumBonus = 5
	// partialTaxFactor scales a single-rate line once other rates are printed.
	partialTaxFactor = 0.8
)

// lineCategories are the keyword classes that label amount lines.
var lineCategories = []keywords.Category{keywords.Total, keywords.Subtotal, keywords.Tax, keywords.TaxAmount}

func fieldFor(c keywords.Category) (Field, bool) {
	switch c {
	case keywords.Total:
		return FieldTotal, true
	case keywords.Subtotal:
		return FieldSubtotal, true
	case keywords.Tax, keywords.TaxAmount:
		return FieldTaxTotal, true
	}
	return "", false
}

// collectLines turns "label ... amount" rows into candidates. The label must
// open the row; the amount is the last non-percentage token.
func (c *collector) collectLines() {
	for _, r := range c.rows {
		if c.consumed[r.Index] {
			continue
		}
		m, ok := c.reg.Head(r.Normalized, c.lang, lineCategories...)
		if !ok {
			continue
		}
		field, ok := fieldFor(m.Category)
		if !ok {
			continue
		}
		amts := r.amountTokens()
		if len(amts) == 0 {
			continue
		}
		if field == FieldTaxTotal && len(amts) >= 2 {
			continue
		}

		amount, ok := c.parse(amts[len(amts)-1])
		if !ok {
			continue
		}
		c.add(Candidate{
			Field:     field,
			Amount:    amount.Decimal,
			Score:     m.Confidence * r.Features.PositionWeight * r.Confidence * 100,
			Source:    SourceLine,
			LineIndex: r.Index,
			Label:     r.Text,
		})
		c.notes.pattern("line:%s:%s", m.Category, m.Keyword)

		if field != FieldTaxTotal {
			continue
		}
		if ps := percents(r.Tokens); len(ps) == 1 {
			if rate, ok := parseRate(ps[0]); ok {
				c.taxLines = append(c.taxLines, taxLine{entry: TaxBreakdownEntry{Rate: rate, TaxAmount: amount}, row: r.Index})
			}
		}
	}
}

// collectRateSum proposes the sum of per-rate tax lines as the tax total when
// two or more rates are printed on separate lines. Each member line is then
// only part of the tax and is scored down.
func (c *collector) collectRateSum() {
	if len(c.tableEntries) > 0 {
		return
	}
	lines := c.rateLines()
	if len(lines) < 2 {
		return
	}

	members := make(map[int]bool, len(lines))
	sum := decimal.Zero
	for _, l := range lines {
		members[l.row] = true
		sum = sum.Add(l.entry.TaxAmount.Decimal)
	}

	var top float64
	for i, cand := range c.candidates {
		if cand.Field != FieldTaxTotal || cand.Source != SourceLine || !members[cand.LineIndex] {
			continue
		}
		top = max(top, cand.Score)
		c.candidates[i].Score = cand.Score * partialTaxFactor
	}

	c.add(Candidate{
		Field:     FieldTaxTotal,
		Amount:    sum,
		Score:     top + rateSumBonus,
		Source:    SourceLine,
		LineIndex: lines[0].row,
		Label:     fmt.Sprintf("sum of %d tax rates", len(lines)),
	})
	c.notes.pattern("line:tax_rates:%d", len(lines))
}
