package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/billguard/billguard/internal/auth"
)

var errTest = errors.New("store unavailable")

var _ = g.Describe("Server", func() {
	var (
		db      *mockDB
		scanner *mockScanner
		server  *Server
		token   string
	)

	doJSON := func(method, path, body string, authed bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if authed {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		return w
	}

	g.BeforeEach(func() {
		db = newMockDB()
		scanner = &mockScanner{
			response: `{"date": "2024-03-15", "items": [{"item": "Milk 2L", "quantity": 1, "price": 3.99}]}`,
		}
		service := NewServiceWithDeps(db, scanner, newMockStorage(), &mockIDGenerator{}, &mockTimeSource{now: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)})
		authService := auth.NewService(db, []byte("test-secret"), time.Hour)
		server = NewServer(service, authService)

		w := doJSON("POST", "/api/auth/signup", `{"email": "alice@example.com", "password": "password123"}`, false)
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = doJSON("POST", "/api/auth/login", `{"email": "alice@example.com", "password": "password123"}`, false)
		Expect(w.Code).To(Equal(http.StatusOK))
		var loginResp map[string]string
		Expect(json.Unmarshal(w.Body.Bytes(), &loginResp)).To(Succeed())
		token = loginResp["token"]
		Expect(token).NotTo(BeEmpty())
	})

	g.Describe("authentication", func() {
		g.It("rejects duplicate signups", func() {
			w := doJSON("POST", "/api/auth/signup", `{"email": "alice@example.com", "password": "password123"}`, false)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		g.It("rejects bad credentials", func() {
			w := doJSON("POST", "/api/auth/login", `{"email": "alice@example.com", "password": "wrong"}`, false)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		g.It("requires a token on protected routes", func() {
			w := doJSON("GET", "/api/entries", "", false)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		g.It("rejects garbage tokens", func() {
			req := httptest.NewRequest("GET", "/api/entries", nil)
			req.Header.Set("Authorization", "Bearer not-a-token")
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	g.Describe("scanning a receipt", func() {
		scanUpload := func() *httptest.ResponseRecorder {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile("file", "receipt.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(mw.Close()).To(Succeed())

			req := httptest.NewRequest("POST", "/api/receipts/scan", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)
			return w
		}

		g.It("returns candidate entries without touching the ledger", func() {
			w := scanUpload()
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Entries []Entry `json:"entries"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Entries).To(HaveLen(1))
			Expect(resp.Entries[0].Description).To(Equal("Milk 2L"))
			Expect(resp.Entries[0].Amount).To(Equal(399))
			Expect(resp.Entries[0].Date).To(Equal("2024-03-15"))
			Expect(resp.Entries[0].ID).To(BeEmpty())

			Expect(db.entries).To(BeEmpty())
		})

		g.It("maps unusable model output to 422", func() {
			scanner.response = "sorry, no receipt here"
			w := scanUpload()
			Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		g.It("maps an all-dropped extraction to 422", func() {
			scanner.response = `{"date": null, "items": [{"item": "Ghost", "quantity": 1, "price": -5}]}`
			w := scanUpload()
			Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
		})
	})

	g.Describe("committing entries", func() {
		g.It("persists a reviewed batch", func() {
			body := `{"entries": [
				{"kind": "expense", "amount": 399, "description": "Milk 2L", "category": "Milk", "date": "2024-03-15"},
				{"kind": "expense", "amount": 250, "description": "Bread", "category": "Bread", "date": "2024-03-15"}
			]}`
			w := doJSON("POST", "/api/entries/batch", body, true)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(db.entries).To(HaveLen(2))
		})

		g.It("rejects an empty batch", func() {
			w := doJSON("POST", "/api/entries/batch", `{"entries": []}`, true)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		g.It("returns 500 when the store fails and keeps the ledger clean", func() {
			db.saveEntriesErr = errTest
			body := `{"entries": [{"kind": "expense", "amount": 399, "description": "Milk", "date": "2024-03-15"}]}`
			w := doJSON("POST", "/api/entries/batch", body, true)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(db.entries).To(BeEmpty())
		})
	})

	g.Describe("entry CRUD", func() {
		g.It("creates, lists, updates and deletes an entry", func() {
			w := doJSON("POST", "/api/entries", `{"kind": "income", "amount": 500000, "description": "Salary", "category": "Salary", "date": "2024-06-01"}`, true)
			Expect(w.Code).To(Equal(http.StatusCreated))

			var created Entry
			Expect(json.Unmarshal(w.Body.Bytes(), &created)).To(Succeed())
			Expect(created.ID).NotTo(BeEmpty())

			w = doJSON("GET", "/api/entries?kind=income", "", true)
			Expect(w.Code).To(Equal(http.StatusOK))
			var listed []Entry
			Expect(json.Unmarshal(w.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(HaveLen(1))

			w = doJSON("PUT", "/api/entries/"+created.ID, `{"kind": "income", "amount": 510000, "description": "Salary", "category": "Salary", "date": "2024-06-01"}`, true)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(db.entries[created.ID].Amount).To(Equal(510000))

			w = doJSON("DELETE", "/api/entries/"+created.ID, "", true)
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(db.entries).To(BeEmpty())
		})

		g.It("hides other owners' entries", func() {
			db.entries["x"] = &Entry{ID: "x", OwnerID: "someone-else", Kind: KindExpense, Amount: 100, Description: "hidden", Date: "2024-06-01"}

			w := doJSON("GET", "/api/entries/x", "", true)
			Expect(w.Code).To(Equal(http.StatusNotFound))

			w = doJSON("GET", "/api/entries", "", true)
			var listed []Entry
			Expect(json.Unmarshal(w.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(BeEmpty())
		})
	})

	g.Describe("recurring payments", func() {
		g.It("registers and posts due payments", func() {
			w := doJSON("POST", "/api/recurring", `{"description": "Rent", "amount": 120000, "category": "Housing", "day_of_month": 1}`, true)
			Expect(w.Code).To(Equal(http.StatusCreated))

			w = doJSON("POST", "/api/recurring/post-due", "", true)
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Posted []Entry `json:"posted"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Posted).To(HaveLen(1))
			Expect(resp.Posted[0].Date).To(Equal("2024-06-01"))
			Expect(db.entries).To(HaveLen(1))
		})

		g.It("rejects an out-of-range day of month", func() {
			w := doJSON("POST", "/api/recurring", `{"description": "Rent", "amount": 120000, "day_of_month": 32}`, true)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	g.Describe("reports", func() {
		g.BeforeEach(func() {
			body := `{"entries": [
				{"kind": "income", "amount": 500000, "description": "Salary", "category": "Salary", "date": "2024-06-01"},
				{"kind": "expense", "amount": 120000, "description": "Rent", "category": "Housing", "date": "2024-06-01"}
			]}`
			w := doJSON("POST", "/api/entries/batch", body, true)
			Expect(w.Code).To(Equal(http.StatusCreated))
		})

		g.It("returns the summary", func() {
			w := doJSON("GET", "/api/reports/summary", "", true)
			Expect(w.Code).To(Equal(http.StatusOK))

			var summary Summary
			Expect(json.Unmarshal(w.Body.Bytes(), &summary)).To(Succeed())
			Expect(summary.TotalIncome).To(Equal(500000))
			Expect(summary.TotalExpenses).To(Equal(120000))
			Expect(summary.Balance).To(Equal(380000))
		})

		g.It("streams an XLSX export", func() {
			w := doJSON("GET", "/api/reports/export", "", true)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(w.Body.Len()).NotTo(BeZero())
		})
	})

	g.Describe("CORS", func() {
		g.It("answers preflight requests without authentication", func() {
			req := httptest.NewRequest("OPTIONS", "/api/entries", nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(w.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("OPTIONS"))
		})

		g.It("sets CORS headers on normal responses", func() {
			w := doJSON("GET", "/api/entries", "", true)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	g.Describe("index page", func() {
		g.It("serves the UI without authentication", func() {
			w := doJSON("GET", "/", "", false)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("text/html"))
		})
	})
})
