package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

var _ = Describe("Numbers", func() {
	var reg *keywords.Registry

	BeforeEach(func() {
		var err error
		reg, err = keywords.Default()
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("ParseAmount",
		func(raw string, lang keywords.Language, want string) {
			d, err := ParseAmount(raw, reg.Format(lang))
			Expect(err).NotTo(HaveOccurred())
			Expect(d.StringFixed(3)).To(Equal(want))
		},
		Entry("German grouping", "1.234,56", keywords.German, "1234.560"),
		Entry("English grouping", "1,234.56", keywords.English, "1234.560"),
		Entry("spaced grouping", "1 234,50", keywords.Finnish, "1234.500"),
		Entry("German lone thousands", "1.234", keywords.German, "1234.000"),
		Entry("English three decimals", "1.234", keywords.English, "1.234"),
		Entry("English lone thousands", "1,234", keywords.English, "1234.000"),
		Entry("comma decimals in English", "12,58", keywords.English, "12.580"),
		Entry("repeated groups", "1.234.567", keywords.German, "1234567.000"),
		Entry("unknown convention", "1,234", keywords.Unknown, "1234.000"),
		Entry("plain integer", "42", keywords.Swedish, "42.000"),
	)

	DescribeTable("unparseable amounts",
		func(raw string) {
			_, err := ParseAmount(raw, reg.Format(keywords.English))
			Expect(err).To(MatchError(ErrUnparseableAmount))
		},
		Entry("irregular groups", "1,23,45"),
		Entry("separator after decimals", "1.234,5.6"),
		Entry("empty", "  "),
	)

	Describe("scanNumbers", func() {
		scan := func(text string, lang keywords.Language) []numberToken {
			f := reg.Format(lang)
			return scanNumbers(text, f, f.Currencies)
		}

		It("skips quantities glued to units", func() {
			tokens := scan("Maito 1L €1.89", keywords.Finnish)
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Raw).To(Equal("1.89"))
		})

		It("marks percentages", func() {
			tokens := scan("ALV 24%: €3.02", keywords.Finnish)
			Expect(tokens).To(HaveLen(2))
			Expect(tokens[0].Percent).To(BeTrue())
			Expect(tokens[1].Percent).To(BeFalse())
			Expect(amounts(tokens)).To(HaveLen(1))
			Expect(percents(tokens)).To(HaveLen(1))
		})

		It("skips dates and times", func() {
			Expect(scan("Date 2026-01-02 13:30", keywords.English)).To(BeEmpty())
		})

		It("reads negative amounts", func() {
			tokens := scan("Alennus -1,50", keywords.Finnish)
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Negative).To(BeTrue())
			d, err := parseToken(tokens[0], reg.Format(keywords.Finnish))
			Expect(err).NotTo(HaveOccurred())
			Expect(d.StringFixed(2)).To(Equal("-1.50"))
		})

		It("accepts a currency glued to the amount", func() {
			tokens := scan("Totalt kr12,50", keywords.Swedish)
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Raw).To(Equal("12,50"))
		})

		It("keeps space-grouped thousands together", func() {
			tokens := scan("Yhteensä 1 234,50", keywords.Finnish)
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].Raw).To(Equal("1 234,50"))
		})
	})
})
