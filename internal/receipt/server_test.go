package receipt

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		extractor   *mockExtractor
		metrics     *Metrics
		limits      Limits
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service := NewServiceWithDeps(db, extractor, mustValidator(), metrics, &sequenceIDGenerator{}, &fixedTimeSource{now: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, metrics, limits, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	}

	do := func(method, path, body string) *http.Response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	BeforeEach(func() {
		db = newMockDB()
		extractor = newMockExtractor()
		metrics = NewMetrics()
		limits = DefaultLimits()
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("POST /api/extract", func() {
		When("the document is valid", func() {
			It("should return status Created with the extraction", func() {
				resp := do("POST", "/api/extract", documentJSON)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
				Expect(resp.Header.Get("X-Request-Id")).NotTo(BeEmpty())

				var e Extraction
				decode(resp, &e)
				Expect(e.ID).To(Equal("id-1"))
				Expect(e.Result.Success).To(BeTrue())
				Expect(e.Result.Fields.Total.String()).To(Equal("15.60"))
			})

			It("should pass query options to the extractor", func() {
				resp := do("POST", "/api/extract?apply_corrections=true&trace=1&lang=sv", documentJSON)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(extractor.lastOpts.ApplyCorrections).To(BeTrue())
				Expect(extractor.lastOpts.Trace).To(BeTrue())
				Expect(extractor.lastOpts.WordLevel).To(BeFalse())
				Expect(extractor.lastDoc.Language).To(Equal("sv"))
			})
		})

		When("the document does not match the schema", func() {
			It("should return status Bad Request with an error message", func() {
				resp := do("POST", "/api/extract", `{"lines": [{"confidence": 0.9}]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("invalid document"))
				Expect(extractor.calls).To(BeZero())
			})
		})

		When("an option is malformed", func() {
			It("should return status Bad Request", func() {
				resp := do("POST", "/api/extract?trace=maybe", documentJSON)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal(`invalid trace: "maybe"`))
			})
		})

		When("the body exceeds the size limit", func() {
			BeforeEach(func() {
				limits.MaxBodyBytes = 16
			})

			It("should return status Request Entity Too Large", func() {
				resp := do("POST", "/api/extract", documentJSON)
				Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("16 bytes"))
			})
		})

		When("saving fails", func() {
			BeforeEach(func() {
				db.saveErr = io.ErrUnexpectedEOF
			})

			It("should return status Internal Server Error", func() {
				resp := do("POST", "/api/extract", documentJSON)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/extractions/{id}", func() {
		BeforeEach(func() {
			db.extractions["abc"] = &Extraction{ID: "abc", Key: "k", Result: newMockExtractor().result}
		})

		When("the extraction exists", func() {
			It("should return it", func() {
				resp := do("GET", "/api/extractions/abc", "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var e Extraction
				decode(resp, &e)
				Expect(e.ID).To(Equal("abc"))
				Expect(e.Result.Language).To(Equal("en"))
			})
		})

		When("the extraction does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("GET", "/api/extractions/missing", "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal("Extraction not found"))
			})
		})
	})

	Describe("GET /api/extractions", func() {
		BeforeEach(func() {
			db.extractions["a"] = &Extraction{ID: "a"}
			db.extractions["b"] = &Extraction{ID: "b"}
		})

		It("should return all extractions", func() {
			resp := do("GET", "/api/extractions", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var extractions []*Extraction
			decode(resp, &extractions)
			Expect(extractions).To(HaveLen(2))
		})
	})

	Describe("DELETE /api/extractions/{id}", func() {
		BeforeEach(func() {
			db.extractions["abc"] = &Extraction{ID: "abc", Key: "k"}
			db.keys["k"] = "abc"
		})

		It("should return status No Content", func() {
			resp := do("DELETE", "/api/extractions/abc", "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.extractions).NotTo(HaveKey("abc"))
		})

		When("the extraction does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("DELETE", "/api/extractions/missing", "")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("GET /healthz", func() {
		It("should report ok", func() {
			resp := do("GET", "/healthz", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]string
			decode(resp, &body)
			Expect(body["status"]).To(Equal("ok"))
		})
	})

	Describe("GET /metrics", func() {
		It("should expose extraction counters", func() {
			resp := do("POST", "/api/extract", documentJSON)
			resp.Body.Close()

			resp = do("GET", "/metrics", "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("receipt_extraction_total"))
			Expect(string(body)).To(ContainSubstring("receipt_http_requests_total"))
		})

		When("metrics are disabled", func() {
			BeforeEach(func() {
				metrics = nil
			})

			It("should return status Not Found", func() {
				resp := do("GET", "/metrics", "")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("preflight", func() {
		It("should answer OPTIONS with No Content and CORS headers", func() {
			resp := do("OPTIONS", "/api/extract", "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Describe("request IDs", func() {
		It("should echo a caller-provided request ID", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("X-Request-Id", "caller-123")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("X-Request-Id")).To(Equal("caller-123"))
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			limits.RequestsPerSecond = 0.001
			limits.Burst = 1
		})

		It("should reject requests above the burst", func() {
			resp := do("GET", "/healthz", "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = do("GET", "/healthz", "")
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(resp.Header.Get("Retry-After")).To(Equal("1"))

			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(Equal("Too many requests"))
		})
	})
})
