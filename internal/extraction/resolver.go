package extraction

import (
	"github.com/shopspring/decimal"
)

// Selection is the ranked evidence for one document: every candidate, the
// winner per field, the items summary and the tax breakdown.
type Selection struct {
	Candidates []Candidate
	Items      *itemsSummary
	Breakdown  []TaxBreakdownEntry

	winners map[Field]Candidate
}

// newSelection ranks candidates and picks the top one per field.
func newSelection(candidates []Candidate, items *itemsSummary, breakdown []TaxBreakdownEntry) *Selection {
	ranked := append([]Candidate(nil), candidates...)
	rankCandidates(ranked)
	s := &Selection{
		Candidates: ranked,
		Items:      items,
		Breakdown:  breakdown,
		winners:    make(map[Field]Candidate),
	}
	for _, f := range amountFields() {
		if c, ok := best(ranked, f, nil); ok {
			s.winners[f] = c
		}
	}
	return s
}

// Winner returns the selected candidate for f.
func (s *Selection) Winner(f Field) (Candidate, bool) {
	c, ok := s.winners[f]
	return c, ok
}

// Evidence returns the best candidate for f that does not come from the
// items sum, so it can be checked against the items sum.
func (s *Selection) Evidence(f Field) (Candidate, bool) {
	return best(s.Candidates, f, func(c Candidate) bool { return c.Source != SourceItemsSum })
}

// correction proposes replacing the selected value of f with to. Nothing is
// proposed when f has no value or already holds to.
func (s *Selection) correction(f Field, to decimal.Decimal, reason string) (Correction, bool) {
	w, ok := s.Winner(f)
	if !ok || w.Amount.Equal(to) {
		return Correction{}, false
	}
	return Correction{Field: f, From: NewMoney(w.Amount), To: NewMoney(to), Reason: reason}, true
}

// Resolution is the outcome of the consistency rules over a selection.
type Resolution struct {
	Selection   *Selection
	Outcomes    []Outcome
	Corrections []Correction
	Values      map[Field]decimal.Decimal
	Score       float64
}

// ConsistencyResolver applies an ordered rule table to a selection.
type ConsistencyResolver struct {
	rules []Rule
}

// NewConsistencyResolver returns a resolver using rules in order.
func NewConsistencyResolver(rules []Rule) *ConsistencyResolver {
	return &ConsistencyResolver{rules: rules}
}

// Resolve evaluates every rule, keeps at most one correction per field and
// applies corrections when apply is set. The score is the sum of rule
// bonuses plus the mean winner score, clamped to [0,1].
func (cr *ConsistencyResolver) Resolve(s *Selection, apply bool) Resolution {
	res := Resolution{Selection: s, Values: make(map[Field]decimal.Decimal)}
	for _, f := range amountFields() {
		if w, ok := s.Winner(f); ok {
			res.Values[f] = w.Amount
		}
	}

	var bonus float64
	claimed := make(map[Field]bool)
	for _, r := range cr.rules {
		o := r.Evaluate(s)
		bonus += o.Bonus
		if o.Correction != nil {
			if claimed[o.Correction.Field] {
				o = o.withoutCorrection()
			} else {
				claimed[o.Correction.Field] = true
				if apply {
					o.Correction.Applied = true
					res.Values[o.Correction.Field] = o.Correction.To.Decimal
				}
				res.Corrections = append(res.Corrections, *o.Correction)
			}
		}
		res.Outcomes = append(res.Outcomes, o)
	}

	var scores []float64
	for _, f := range amountFields() {
		if w, ok := s.Winner(f); ok {
			scores = append(scores, w.Score/100)
		}
	}
	res.Score = clampUnit(bonus + mean(scores, 0))
	return res
}

// Warnings returns the rule warnings in rule order.
func (r Resolution) Warnings() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Warning != "" {
			out = append(out, o.Warning)
		}
	}
	return out
}

// Applied reports whether any correction was applied.
func (r Resolution) Applied() bool {
	for _, c := range r.Corrections {
		if c.Applied {
			return true
		}
	}
	return false
}
