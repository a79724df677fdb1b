package receipt

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validator", func() {
	var validator *Validator

	BeforeEach(func() {
		validator = mustValidator()
	})

	DescribeTable("rejecting malformed documents",
		func(data string) {
			_, err := validator.Decode([]byte(data))
			Expect(err).To(MatchError(ErrInvalidDocument))
		},
		Entry("a three-number bounding box", `{"lines": [{"text": "TOTAL 1.00", "boundingBox": [1, 2, 3]}]}`),
		Entry("a line without text", `{"lines": [{"confidence": 0.9}]}`),
		Entry("lines that are not an array", `{"lines": "TOTAL 1.00"}`),
		Entry("a non-numeric price", `{"lines": [], "items": [{"name": "Milk", "totalPrice": "1,89"}]}`),
		Entry("an overlong language hint", `{"lines": [], "language": "not-a-language-code"}`),
		Entry("no object at all", `TOTAL 1.00`),
		Entry("a truncated object", `{"lines": [`),
	)

	It("should accept prices as numbers or decimal strings", func() {
		doc, err := validator.Decode([]byte(`{"lines": [{"text": "TOTAL 3.39"}], "items": [
			{"name": "Milk", "quantity": 1, "totalPrice": 1.89},
			{"name": "Bread", "quantity": 1, "totalPrice": "1.50", "unitPrice": null}
		]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Items).To(HaveLen(2))
		Expect(doc.Items[0].TotalPrice.String()).To(Equal("1.89"))
		Expect(doc.Items[1].TotalPrice.String()).To(Equal("1.50"))
		Expect(doc.Items[1].UnitPrice).To(BeNil())
	})

	It("should decode bounding boxes and elements", func() {
		doc, err := validator.Decode([]byte(`{"pageWidth": 400, "pageHeight": 600, "lines": [
			{"text": "TOTAL 15.60", "boundingBox": [50, 775, 80, 15], "confidence": 0.95,
			 "elements": [{"text": "TOTAL", "boundingBox": [50, 775, 40, 15]}, {"text": "15.60"}]}
		]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.PageHeight).To(Equal(600.0))
		line := doc.Lines[0]
		Expect(line.BoundingBox.Y).To(Equal(775.0))
		Expect(line.BoundingBox.Height).To(Equal(15.0))
		Expect(line.Elements).To(HaveLen(2))
		Expect(line.Elements[1].BoundingBox).To(BeNil())
	})

	It("should accept an empty document", func() {
		doc, err := validator.Decode([]byte(`{}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Lines).To(BeEmpty())
	})

	It("should ignore text around the object", func() {
		doc, err := validator.Decode([]byte("Here is the OCR output:\n```json\n{\"lines\": [{\"text\": \"TOTAL 1.00\"}]}\n```\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Lines).To(HaveLen(1))
	})
})
