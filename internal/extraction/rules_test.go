package extraction

import (
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ruleByID(id string) Rule {
	for _, r := range DefaultRules() {
		if r.ID == id {
			return r
		}
	}
	Fail("no rule " + id)
	return Rule{}
}

var _ = Describe("Rules", func() {
	Describe("items_sum_matches_subtotal", func() {
		var (
			items *itemsSummary
			sel   *Selection
		)

		BeforeEach(func() {
			items = &itemsSummary{Sum: amount("60.00"), Count: 2, Priced: 2}
		})

		evaluate := func(subtotal string) Outcome {
			sel = newSelection([]Candidate{
				{Field: FieldSubtotal, Amount: amount(subtotal), Score: 50, Source: SourceLine, LineIndex: 3},
			}, items, nil)
			return ruleByID("items_sum_matches_subtotal").Evaluate(sel)
		}

		It("gives the exact bonus without a warning", func() {
			o := evaluate("60.00")
			Expect(o.Band).To(Equal(BandExact))
			Expect(o.Bonus).To(Equal(0.15))
			Expect(o.Warning).To(BeEmpty())
		})

		It("gives the close bonus with a warning", func() {
			o := evaluate("60.05")
			Expect(o.Band).To(Equal(BandClose))
			Expect(o.Bonus).To(Equal(0.10))
			Expect(o.Warning).To(Equal("subtotal 60.05 is close to items sum 60.00 (difference 0.05)"))
			Expect(o.Correction).To(BeNil())
		})

		It("only warns on a mismatch", func() {
			o := evaluate("70.00")
			Expect(o.Band).To(Equal(BandMismatch))
			Expect(o.Bonus).To(BeZero())
			Expect(o.Warning).To(Equal("subtotal 70.00 does not match items sum 60.00 (difference 10.00)"))
		})

		When("the items are well covered", func() {
			BeforeEach(func() {
				items = &itemsSummary{Sum: amount("60.00"), Count: 4, Priced: 4}
			})

			It("proposes the items sum", func() {
				o := evaluate("60.05")
				Expect(o.Correction).NotTo(BeNil())
				Expect(o.Correction.Field).To(Equal(FieldSubtotal))
				Expect(o.Correction.To.String()).To(Equal("60.00"))
				Expect(o.Correction.Rule).To(Equal("items_sum_matches_subtotal"))
			})
		})

		It("is skipped without items", func() {
			items = nil
			Expect(evaluate("60.00").Band).To(Equal(BandSkipped))
		})
	})

	Describe("breakdown_matches_tax_total", func() {
		It("has no close band", func() {
			sel := newSelection(
				[]Candidate{{Field: FieldTaxTotal, Amount: amount("4.35"), Score: 50, Source: SourceLine}},
				nil,
				[]TaxBreakdownEntry{{Rate: 14, TaxAmount: MustMoney("1.06")}, {Rate: 24, TaxAmount: MustMoney("3.24")}},
			)
			o := ruleByID("breakdown_matches_tax_total").Evaluate(sel)
			Expect(o.Band).To(Equal(BandMismatch))
			Expect(o.Bonus).To(BeZero())
		})
	})

	Describe("ConsistencyResolver", func() {
		var sel *Selection

		BeforeEach(func() {
			sel = newSelection([]Candidate{
				{Field: FieldSubtotal, Amount: amount("12.58"), Score: 90, Source: SourceLine, LineIndex: 1},
				{Field: FieldTaxTotal, Amount: amount("3.02"), Score: 80, Source: SourceLine, LineIndex: 2},
				{Field: FieldTotal, Amount: amount("15.67"), Score: 70, Source: SourceLine, LineIndex: 3},
			}, nil, nil)
		})

		It("proposes recomputing the weakest field", func() {
			res := NewConsistencyResolver(DefaultRules()).Resolve(sel, false)
			Expect(res.Corrections).To(HaveLen(1))
			Expect(res.Corrections[0].Field).To(Equal(FieldTotal))
			Expect(res.Corrections[0].From.String()).To(Equal("15.67"))
			Expect(res.Corrections[0].To.String()).To(Equal("15.60"))
			Expect(res.Applied()).To(BeFalse())
			Expect(res.Values[FieldTotal].StringFixed(2)).To(Equal("15.67"))
			Expect(res.Warnings()).To(HaveLen(1))
		})

		It("applies the correction on request", func() {
			res := NewConsistencyResolver(DefaultRules()).Resolve(sel, true)
			Expect(res.Applied()).To(BeTrue())
			Expect(res.Values[FieldTotal].StringFixed(2)).To(Equal("15.60"))
		})

		It("scores the bonus plus the mean winner score", func() {
			res := NewConsistencyResolver(DefaultRules()).Resolve(sel, false)
			Expect(res.Score).To(BeNumerically("~", 0.10+0.8, 1e-9))
		})
	})

	Describe("ranking", func() {
		It("prefers higher scores, then source priority, then earlier rows", func() {
			cs := []Candidate{
				{Field: FieldTotal, Amount: amount("3"), Score: 50, Source: SourceItemsSum, LineIndex: -1},
				{Field: FieldTotal, Amount: amount("2"), Score: 50, Source: SourceLine, LineIndex: 9},
				{Field: FieldTotal, Amount: amount("1"), Score: 50, Source: SourceLine, LineIndex: 4},
				{Field: FieldTotal, Amount: amount("4"), Score: 50, Source: SourceTable, LineIndex: 12},
				{Field: FieldTotal, Amount: amount("5"), Score: 60, Source: SourceItemsSum, LineIndex: -1},
			}
			rankCandidates(cs)
			var order []string
			for _, c := range cs {
				order = append(order, c.Amount.String())
			}
			Expect(order).To(Equal([]string{"5", "4", "1", "2", "3"}))
		})

		It("clamps scores", func() {
			Expect(clampScore(120)).To(Equal(100.0))
			Expect(clampScore(-3)).To(Equal(0.0))
		})
	})
})
