package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

var _ = Describe("Fields", func() {
	DescribeTable("findDate",
		func(text, want string) {
			Expect(findDate(text)).To(Equal(want))
		},
		Entry("ISO", "Päivämäärä: 2026-01-02", "2026-01-02"),
		Entry("year first with slashes", "Date 2024/01/05", "2024-01-05"),
		Entry("day first", "12.03.2025 14:02", "2025-03-12"),
		Entry("month first when the day cannot be a month", "03/25/2024", "2024-03-25"),
		Entry("two-digit year", "31.12.24", "2024-12-31"),
		Entry("impossible date", "31.02.2024", ""),
		Entry("no date", "Kiitos!", ""),
	)

	Describe("item lines", func() {
		var result *Result

		BeforeEach(func() {
			reg, err := keywords.Default()
			Expect(err).NotTo(HaveOccurred())
			result = NewEngine(reg).Extract(Document{
				Language: "en",
				Lines: plain(
					"Corner Cafe",
					"Items:",
					"2 x Coffee     $5.00",
					"Bagel          $3.10",
					"Thank you",
					"TOTAL          $8.10",
					"Paid with: voucher",
				),
			}, Options{})
		})

		It("reads quantity prefixes and unit prices", func() {
			items := result.Fields.Items
			Expect(items).To(HaveLen(2))
			Expect(items[0].Name).To(Equal("Coffee"))
			Expect(items[0].Quantity).To(Equal(2.0))
			Expect(items[0].UnitPrice.String()).To(Equal("2.50"))
			Expect(items[1].Name).To(Equal("Bagel"))
			Expect(result.AppliedPatterns).To(ContainElement("items:ocr-lines"))
		})

		It("takes the merchant from the top rows", func() {
			Expect(result.Fields.MerchantName).To(Equal("Corner Cafe"))
		})

		It("defaults the document type to receipt", func() {
			Expect(result.Fields.DocumentType).To(Equal("receipt"))
		})
	})
})
