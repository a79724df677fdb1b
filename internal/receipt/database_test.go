package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var (
		db     *BoltDB
		record *Extraction
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())

		total := extraction.MustMoney("15.60")
		record = &Extraction{
			ID:  "test-id",
			Key: "test-key",
			Result: &extraction.Result{
				Success:         true,
				Fields:          &extraction.Fields{Total: &total, TaxBreakdown: []extraction.TaxBreakdownEntry{{Rate: 24, TaxAmount: extraction.MustMoney("3.02")}}},
				Confidence:      0.95,
				Language:        "fi",
				Warnings:        []string{},
				AppliedPatterns: []string{"language:fi:detected"},
			},
			CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		}
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveExtraction", func() {
		JustBeforeEach(func() {
			Expect(db.SaveExtraction(record)).To(Succeed())
		})

		It("should be retrievable by ID", func() {
			saved, err := db.GetExtraction("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Key).To(Equal("test-key"))
			Expect(saved.CreatedAt).To(BeTemporally("==", record.CreatedAt))
			Expect(saved.Result.Fields.Total.String()).To(Equal("15.60"))
			Expect(saved.Result.Fields.TaxBreakdown[0].TaxAmount.String()).To(Equal("3.02"))
			Expect(saved.Result.Language).To(Equal("fi"))
		})

		It("should be retrievable by key", func() {
			saved, err := db.FindByKey("test-key")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ID).To(Equal("test-id"))
		})

		It("should be listed", func() {
			all, err := db.ListExtractions()
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})
	})

	Describe("GetExtraction", func() {
		When("the extraction does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := db.GetExtraction("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("FindByKey", func() {
		When("the key is unknown", func() {
			It("should return ErrNotFound", func() {
				_, err := db.FindByKey("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("DeleteExtraction", func() {
		BeforeEach(func() {
			Expect(db.SaveExtraction(record)).To(Succeed())
		})

		It("should remove the extraction and its key", func() {
			Expect(db.DeleteExtraction("test-id")).To(Succeed())
			_, err := db.GetExtraction("test-id")
			Expect(err).To(MatchError(ErrNotFound))
			_, err = db.FindByKey("test-key")
			Expect(err).To(MatchError(ErrNotFound))
		})

		When("the extraction does not exist", func() {
			It("should return ErrNotFound", func() {
				Expect(db.DeleteExtraction("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("traced results", func() {
		It("should round-trip candidates", func() {
			record.Result.Trace = &extraction.Trace{
				Candidates: []extraction.Candidate{{Field: "total", Amount: extraction.MustMoney("15.60").Decimal, Score: 80, Source: extraction.SourceTable, LineIndex: 3, Label: "tax table (24%)"}},
			}
			Expect(db.SaveExtraction(record)).To(Succeed())
			saved, err := db.GetExtraction("test-id")
			Expect(err).NotTo(HaveOccurred())
			c := saved.Result.Trace.Candidates[0]
			Expect(c.Source).To(Equal(extraction.SourceTable))
			Expect(c.Amount.StringFixed(2)).To(Equal("15.60"))
		})
	})
})
