package extraction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// itemsSummary aggregates the priced items of a document.
type itemsSummary struct {
	Sum    decimal.Decimal
	Count  int
	Priced int
}

// summarizeItems sums the present totalPrices. Items without a price are
// left out of the sum; with none priced there is no summary.
func summarizeItems(items []ReceiptItem) (*itemsSummary, bool) {
	s := itemsSummary{Count: len(items)}
	for _, it := range items {
		if it.TotalPrice == nil {
			continue
		}
		s.Sum = s.Sum.Add(it.TotalPrice.Decimal)
		s.Priced++
	}
	if s.Priced == 0 {
		return nil, false
	}
	return &s, true
}

// score is 60, plus 10 at three items, 10 at five and 10 when every item
// carries a price.
func (s itemsSummary) score() float64 {
	score := 60.0
	if s.Count >= 3 {
		score += 10
	}
	if s.Count >= 5 {
		score += 10
	}
	if s.Priced == s.Count {
		score += 10
	}
	return clampScore(score)
}

// wellCovered reports whether the items are complete enough to overrule
// a line amount.
func (s itemsSummary) wellCovered() bool {
	return s.Priced >= 3 && s.Priced == s.Count
}

func (s itemsSummary) describe() string {
	return fmt.Sprintf("%d of %d items priced", s.Priced, s.Count)
}

// collectItemsSum proposes the items sum as subtotal and, when a tax
// candidate exists, itemsSum plus the best tax as total.
func (c *collector) collectItemsSum(s itemsSummary) {
	score := s.score()
	c.add(Candidate{
		Field:     FieldSubtotal,
		Amount:    s.Sum,
		Score:     score,
		Source:    SourceItemsSum,
		LineIndex: -1,
		Label:     "items sum",
	})
	c.notes.pattern("items_sum:%d-items", s.Priced)

	tax, ok := best(c.candidates, FieldTaxTotal, nil)
	if !ok {
		return
	}
	c.add(Candidate{
		Field:     FieldTotal,
		Amount:    s.Sum.Add(tax.Amount),
		Score:     score,
		Source:    SourceItemsSum,
		LineIndex: -1,
		Label:     "items sum + tax",
	})
}

// normalizeItems applies item defaults: quantity below one becomes one and
// negative prices are dropped from the sums.
func normalizeItems(items []ReceiptItem, n *notes) []ReceiptItem {
	out := make([]ReceiptItem, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if it.TotalPrice != nil && it.TotalPrice.IsNegative() {
			n.warn("item %q has a negative total price; excluded from sums", it.Name)
			it.TotalPrice = nil
		}
		out = append(out, it)
	}
	return out
}
