package extraction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Band classifies the difference between two amounts.
type Band string

const (
	BandSkipped  Band = "skipped"
	BandExact    Band = "exact"
	BandClose    Band = "close"
	BandMismatch Band = "mismatch"
)

// Tolerance bounds the exact and close bands.
type Tolerance struct {
	Exact decimal.Decimal
	Close decimal.Decimal
}

// DefaultTolerance is ±0.01 exact, ±0.10 close.
func DefaultTolerance() Tolerance {
	return Tolerance{
		Exact: decimal.RequireFromString("0.01"),
		Close: decimal.RequireFromString("0.10"),
	}
}

func (t Tolerance) band(diff decimal.Decimal, allowClose bool) Band {
	diff = diff.Abs()
	switch {
	case diff.LessThanOrEqual(t.Exact):
		return BandExact
	case allowClose && diff.LessThanOrEqual(t.Close):
		return BandClose
	default:
		return BandMismatch
	}
}

// comparison is an observed amount checked against the value the other
// fields imply.
type comparison struct {
	observed      decimal.Decimal
	observedLabel string
	expected      decimal.Decimal
	expectedLabel string
}

// Rule is one cross-field consistency check.
type Rule struct {
	ID         string
	Tolerance  Tolerance
	ExactBonus float64
	CloseBonus float64
	// AllowClose enables the close band; otherwise anything past exact is a
	// mismatch.
	AllowClose bool
	check      func(*Selection) (comparison, bool)
	propose    func(*Selection, comparison) (Correction, bool)
}

// Outcome is the result of evaluating a rule.
type Outcome struct {
	Rule       string      `json:"rule"`
	Band       Band        `json:"band"`
	Observed   *Money      `json:"observed,omitempty"`
	Expected   *Money      `json:"expected,omitempty"`
	Bonus      float64     `json:"bonus"`
	Warning    string      `json:"warning,omitempty"`
	Correction *Correction `json:"correction,omitempty"`

	message string
}

// withoutCorrection drops the proposed correction and its mention.
func (o Outcome) withoutCorrection() Outcome {
	o.Correction = nil
	o.Warning = o.message
	return o
}

// Evaluate runs the rule against s. Rules whose inputs are missing are
// skipped.
func (r Rule) Evaluate(s *Selection) Outcome {
	cmp, ok := r.check(s)
	if !ok {
		return Outcome{Rule: r.ID, Band: BandSkipped}
	}
	diff := cmp.observed.Sub(cmp.expected)
	o := Outcome{
		Rule:     r.ID,
		Band:     r.Tolerance.band(diff, r.AllowClose),
		Observed: MoneyPtr(cmp.observed),
		Expected: MoneyPtr(cmp.expected),
	}
	switch o.Band {
	case BandExact:
		o.Bonus = r.ExactBonus
		return o
	case BandClose:
		o.Bonus = r.CloseBonus
		o.message = fmt.Sprintf("%s %s is close to %s %s (difference %s)",
			cmp.observedLabel, NewMoney(cmp.observed), cmp.expectedLabel, NewMoney(cmp.expected), NewMoney(diff.Abs()))
		o.Warning = o.message
		if r.propose == nil {
			return o
		}
		if c, ok := r.propose(s, cmp); ok {
			c.Rule = r.ID
			o.Correction = &c
			o.Warning = fmt.Sprintf("%s; proposed %s %s -> %s: %s", o.message, c.Field, c.From, c.To, c.Reason)
		}
		return o
	default:
		o.message = fmt.Sprintf("%s %s does not match %s %s (difference %s)",
			cmp.observedLabel, NewMoney(cmp.observed), cmp.expectedLabel, NewMoney(cmp.expected), NewMoney(diff.Abs()))
		o.Warning = o.message
		return o
	}
}

// DefaultRules returns the rule table in evaluation order.
func DefaultRules() []Rule {
	tol := DefaultTolerance()
	return []Rule{
		{
			ID:         "total_matches_subtotal_plus_tax",
			Tolerance:  tol,
			ExactBonus: 0.15,
			CloseBonus: 0.10,
			AllowClose: true,
			check:      checkTotalAgainstParts,
			propose:    proposeWeakestPart,
		},
		{
			ID:         "items_sum_matches_subtotal",
			Tolerance:  tol,
			ExactBonus: 0.15,
			CloseBonus: 0.10,
			AllowClose: true,
			check:      checkItemsAgainstSubtotal,
			propose:    proposeItemsSubtotal,
		},
		{
			ID:         "items_sum_plus_tax_matches_total",
			Tolerance:  tol,
			ExactBonus: 0.15,
			CloseBonus: 0.10,
			AllowClose: true,
			check:      checkItemsAgainstTotal,
			propose:    proposeItemsTotal,
		},
		{
			ID:        "breakdown_matches_tax_total",
			Tolerance: tol,
			check:     checkBreakdown,
		},
	}
}

// partsTotal is the total compared with subtotal + tax. An items-derived
// total is not checked against an items-derived subtotal; the best
// independent total is used instead.
func partsTotal(s *Selection) (Candidate, bool) {
	total, ok := s.Winner(FieldTotal)
	if !ok {
		return Candidate{}, false
	}
	sub, _ := s.Winner(FieldSubtotal)
	if total.Source == SourceItemsSum && sub.Source == SourceItemsSum {
		return s.Evidence(FieldTotal)
	}
	return total, true
}

func checkTotalAgainstParts(s *Selection) (comparison, bool) {
	total, ok := partsTotal(s)
	if !ok {
		return comparison{}, false
	}
	sub, ok := s.Winner(FieldSubtotal)
	if !ok {
		return comparison{}, false
	}
	tax, ok := s.Winner(FieldTaxTotal)
	if !ok {
		return comparison{}, false
	}
	return comparison{
		observed:      total.Amount,
		observedLabel: "total",
		expected:      sub.Amount.Add(tax.Amount),
		expectedLabel: "subtotal + tax",
	}, true
}

// proposeWeakestPart recomputes whichever of total, subtotal and tax has
// the lowest score from the other two.
func proposeWeakestPart(s *Selection, _ comparison) (Correction, bool) {
	total, _ := partsTotal(s)
	sub, _ := s.Winner(FieldSubtotal)
	tax, _ := s.Winner(FieldTaxTotal)

	weakest := total
	to := sub.Amount.Add(tax.Amount)
	reason := "subtotal + tax"
	if sub.Score < weakest.Score {
		weakest, to, reason = sub, total.Amount.Sub(tax.Amount), "total - tax"
	}
	if tax.Score < weakest.Score {
		weakest, to, reason = tax, total.Amount.Sub(sub.Amount), "total - subtotal"
	}
	return s.correction(weakest.Field, to, fmt.Sprintf("%s has the weakest evidence (%s, score %.1f); recomputed as %s",
		weakest.Field, weakest.Source, weakest.Score, reason))
}

func checkItemsAgainstSubtotal(s *Selection) (comparison, bool) {
	if s.Items == nil {
		return comparison{}, false
	}
	sub, ok := s.Evidence(FieldSubtotal)
	if !ok {
		return comparison{}, false
	}
	return comparison{
		observed:      sub.Amount,
		observedLabel: "subtotal",
		expected:      s.Items.Sum,
		expectedLabel: "items sum",
	}, true
}

func proposeItemsSubtotal(s *Selection, _ comparison) (Correction, bool) {
	sub, _ := s.Evidence(FieldSubtotal)
	if !s.Items.wellCovered() || sub.Source != SourceLine {
		return Correction{}, false
	}
	return s.correction(FieldSubtotal, s.Items.Sum, "items sum covers "+s.Items.describe())
}

func checkItemsAgainstTotal(s *Selection) (comparison, bool) {
	if s.Items == nil {
		return comparison{}, false
	}
	total, ok := s.Evidence(FieldTotal)
	if !ok {
		return comparison{}, false
	}
	tax, ok := s.Winner(FieldTaxTotal)
	if !ok {
		return comparison{}, false
	}
	return comparison{
		observed:      total.Amount,
		observedLabel: "total",
		expected:      s.Items.Sum.Add(tax.Amount),
		expectedLabel: "items sum + tax",
	}, true
}

func proposeItemsTotal(s *Selection, cmp comparison) (Correction, bool) {
	total, _ := s.Evidence(FieldTotal)
	if !s.Items.wellCovered() || total.Source != SourceLine {
		return Correction{}, false
	}
	return s.correction(FieldTotal, cmp.expected, "items sum + tax covers "+s.Items.describe())
}

func checkBreakdown(s *Selection) (comparison, bool) {
	if len(s.Breakdown) == 0 {
		return comparison{}, false
	}
	tax, ok := s.Winner(FieldTaxTotal)
	if !ok {
		return comparison{}, false
	}
	var sum decimal.Decimal
	for _, e := range s.Breakdown {
		sum = sum.Add(e.TaxAmount.Decimal)
	}
	return comparison{
		observed:      tax.Amount,
		observedLabel: "tax total",
		expected:      sum,
		expectedLabel: "tax breakdown sum",
	}, true
}
