package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var backendReceipts = []map[string]any{
	{
		"id":            1,
		"merchant_name": "Walmart",
		"total_amount":  "42.10",
		"status":        "completed",
		"filename":      "walmart.pdf",
		"upload_date":   "2024-05-01T10:00:00Z",
		"purchase_date": "2024-04-30",
	},
	{
		"id":           2,
		"merchantName": "Target",
		"totalAmount":  12.5,
		"status":       "processing",
		"filename":     "target.pdf",
		"uploadDate":   "2024-05-03T10:00:00Z",
	},
	{
		"id":            3,
		"merchant_name": "Costco",
		"total_amount":  "100",
		"status":        "failed",
		"filename":      "costco.pdf",
		"upload_date":   "2024-05-02T10:00:00Z",
	},
}

var _ = Describe("Receipt screens", func() {
	var (
		env *testEnv
		b   *browser
	)

	BeforeEach(func() {
		env = newTestEnv(BasicAuth{})
		b = newBrowser(env.server)
	})

	AfterEach(func() {
		env.close()
	})

	When("the backend lists receipts", func() {
		BeforeEach(func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts", ghttp.RespondWithJSONEncoded(http.StatusOK, backendReceipts))
		})

		Describe("dashboard", func() {
			It("shows the counts and recent receipts", func() {
				rec := b.get("/")
				Expect(rec.Code).To(Equal(http.StatusOK))
				body := rec.Body.String()
				Expect(body).To(ContainSubstring("$42.10"))
				Expect(body).To(ContainSubstring("Target"))
				Expect(body).To(ContainSubstring("Costco"))
			})
		})

		Describe("list", func() {
			It("shows every receipt by default", func() {
				rec := b.get("/receipts")
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Body.String()).To(ContainSubstring("3 receipts found"))
			})

			It("filters by merchant name", func() {
				rec := b.get("/receipts?q=Mart")
				body := rec.Body.String()
				Expect(body).To(ContainSubstring("1 receipts found"))
				Expect(body).To(ContainSubstring("Walmart"))
				Expect(body).NotTo(ContainSubstring("Target"))
			})

			It("combines the search with the status", func() {
				rec := b.get("/receipts?q=Mart&status=failed")
				Expect(rec.Body.String()).To(ContainSubstring("0 receipts found"))
			})

			It("matches filenames case-insensitively", func() {
				rec := b.get("/receipts?q=COSTCO.PDF")
				Expect(rec.Body.String()).To(ContainSubstring("1 receipts found"))
			})

			It("keeps the chosen filter selected", func() {
				rec := b.get("/receipts?status=processing")
				Expect(rec.Body.String()).To(ContainSubstring(`<option value="processing" selected>`))
			})
		})

		Describe("API", func() {
			It("returns the filtered canonical receipts", func() {
				rec := b.get("/api/receipts?status=processing")
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

				var got []map[string]any
				Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
				Expect(got).To(HaveLen(1))
				Expect(got[0]["merchant_name"]).To(Equal("Target"))
				Expect(got[0]["total_amount"]).To(Equal("12.5"))
			})

			It("returns the dashboard numbers", func() {
				rec := b.get("/api/stats")
				var got map[string]any
				Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
				Expect(got["total"]).To(BeNumerically("==", 3))
				Expect(got["completed"]).To(BeNumerically("==", 1))
				Expect(got["completed_amount"]).To(Equal("42.1"))
			})
		})
	})

	When("the backend fails to list receipts", func() {
		BeforeEach(func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts",
				ghttp.RespondWithJSONEncoded(http.StatusInternalServerError, map[string]string{"detail": "database unavailable"}))
		})

		It("shows the error on the list with a retry link", func() {
			rec := b.get("/receipts?q=abc")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			body := rec.Body.String()
			Expect(body).To(ContainSubstring("database unavailable"))
			Expect(body).To(ContainSubstring(`href="/receipts?q=abc&amp;status=all"`))
		})

		It("shows the error on the dashboard", func() {
			rec := b.get("/")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).To(ContainSubstring("database unavailable"))
		})

		It("returns the error as JSON", func() {
			rec := b.get("/api/receipts")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).To(MatchJSON(`{"error": "database unavailable"}`))
		})
	})

	Describe("detail", func() {
		It("renders the receipt with its items", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/7", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id":            7,
				"merchant_name": "Walmart",
				"total_amount":  "18.00",
				"tax_amount":    "1.50",
				"status":        "completed",
				"items": []map[string]any{
					{"name": "Milk", "quantity": 2, "price": "3.25", "total": "6.50"},
					{"description": "Bread", "unit_price": 2},
				},
			}))

			rec := b.get("/receipts/7")
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := rec.Body.String()
			Expect(body).To(ContainSubstring("Walmart"))
			Expect(body).To(ContainSubstring("$18.00"))
			Expect(body).To(ContainSubstring("$1.50"))
			Expect(body).To(ContainSubstring("Milk"))
			Expect(body).To(ContainSubstring("Bread"))
			Expect(body).To(ContainSubstring(`action="/receipts/7/reprocess"`))
		})

		It("shows a backend error inline", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/404", ghttp.RespondWith(http.StatusNotFound, ""))

			rec := b.get("/receipts/404")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).To(ContainSubstring("request failed with status 404"))
		})

		It("returns the receipt as JSON", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/7", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"merchantName": "Target",
			}))

			rec := b.get("/api/receipts/7")
			var got map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got["id"]).To(Equal("7"))
			Expect(got["merchant_name"]).To(Equal("Target"))
			Expect(got["file_id"]).To(BeNumerically("==", 7))
		})
	})

	Describe("reprocess", func() {
		It("resubmits the receipt's file and shows the result", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/7", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id": 7, "merchant_name": "Walmart", "status": "failed", "file_id": 42,
			}))
			env.backend.RouteToHandler(http.MethodPost, "/process", ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/process", "file_id=42"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"id": 7, "merchant_name": "Walmart", "status": "completed", "total_amount": "9.99",
				}),
			))

			rec := b.post("/receipts/7/reprocess")
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := rec.Body.String()
			Expect(body).To(ContainSubstring("Receipt reprocessed."))
			Expect(body).To(ContainSubstring("$9.99"))
			Expect(env.requestsTo("/process")).To(Equal(1))
		})

		It("does nothing while the receipt is processing", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/7", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id": 7, "merchant_name": "Walmart", "status": "processing", "file_id": 42,
			}))

			rec := b.post("/receipts/7/reprocess")
			Expect(rec.Code).To(Equal(http.StatusConflict))
			body := rec.Body.String()
			Expect(body).To(ContainSubstring("still processing"))
			Expect(body).To(ContainSubstring("disabled"))
			Expect(env.requestsTo("/process")).To(BeZero())
		})

		It("shows the backend error and keeps the receipt on screen", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/7", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id": 7, "merchant_name": "Walmart", "status": "completed", "file_id": 42,
			}))
			env.backend.RouteToHandler(http.MethodPost, "/process", ghttp.RespondWithJSONEncoded(http.StatusUnprocessableEntity, map[string]any{
				"detail": []map[string]any{{"loc": []any{"query", "file_id"}, "msg": "file not found"}},
			}))

			rec := b.post("/receipts/7/reprocess")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			body := rec.Body.String()
			Expect(body).To(ContainSubstring("query.file_id: file not found"))
			Expect(body).To(ContainSubstring("Walmart"))
		})

		It("finishes when the browser disconnects mid-request", func() {
			env.backend.RouteToHandler(http.MethodGet, "/receipts/7", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id": 7, "merchant_name": "Walmart", "status": "failed", "file_id": 42,
			}))
			env.backend.RouteToHandler(http.MethodPost, "/process", ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id": 7, "merchant_name": "Walmart", "status": "completed",
			}))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			req := httptest.NewRequest(http.MethodPost, "/receipts/7/reprocess", nil).WithContext(ctx)

			rec := b.do(req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("Receipt reprocessed."))
			Expect(env.requestsTo("/process")).To(Equal(1))
		})
	})
})
