package receipt

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/keywords"
)

const receiptJSON = `{
  "lines": [
    {"text": "TOTAL: €15.60"},
    {"text": "VAT 24%: €3.02"},
    {"text": "Subtotal: €12.58"}
  ],
  "items": [
    {"name": "Bread", "quantity": 1, "totalPrice": 2.50},
    {"name": "Milk", "quantity": 1, "totalPrice": "1.89"},
    {"name": "Apples", "quantity": 1, "totalPrice": 3.20},
    {"name": "Coffee", "quantity": 1, "totalPrice": 4.99}
  ]
}`

var _ = Describe("Extraction API", func() {
	var (
		db          *BoltDB
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "extractions.db"))
		Expect(err).NotTo(HaveOccurred())

		reg, err := keywords.Default()
		Expect(err).NotTo(HaveOccurred())

		metrics := NewMetrics()
		service := NewService(db, extraction.NewEngine(reg), mustValidator(), metrics)
		server := NewServer(service, metrics, DefaultLimits())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
		db.Close()
	})

	post := func(body string) *Extraction {
		resp, err := http.Post(ghttpServer.URL()+"/api/extract", "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		var e Extraction
		Expect(json.Unmarshal(data, &e)).To(Succeed())
		return &e
	}

	It("should extract consistent totals from a posted document", func() {
		e := post(receiptJSON)
		Expect(e.Result.Success).To(BeTrue())
		Expect(e.Result.Language).To(Equal("en"))
		Expect(e.Result.Fields.Total.String()).To(Equal("15.60"))
		Expect(e.Result.Fields.Subtotal.String()).To(Equal("12.58"))
		Expect(e.Result.Fields.TaxTotal.String()).To(Equal("3.02"))
		Expect(e.Result.Fields.Items).To(HaveLen(4))
		Expect(e.Result.NeedsVerification).To(BeFalse())
	})

	It("should answer a repeated document from the store", func() {
		first := post(receiptJSON)
		second := post(receiptJSON)
		Expect(second.ID).To(Equal(first.ID))

		resp, err := http.Get(ghttpServer.URL() + "/api/extractions/" + first.ID)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var stored Extraction
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, &stored)).To(Succeed())
		Expect(stored.Result.Fields.Total.String()).To(Equal("15.60"))
	})

	It("should report a document without text as unsuccessful", func() {
		e := post(`{"lines": []}`)
		Expect(e.Result.Success).To(BeFalse())
		Expect(e.Result.Error).NotTo(BeEmpty())
	})
})
