package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/billguard/billguard/internal/auth"
)

type contextKey string

const ownerKey contextKey = "owner"

// Server handles HTTP requests for the ledger
type Server struct {
	service *Service
	auth    *auth.Service
	mux     *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, authService *auth.Service) *Server {
	return NewServerWithMux(service, authService, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, authService *auth.Service, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		auth:    authService,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth verifies the bearer token and stores the owner ID in the
// request context for handlers to pick up.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			setCORSHeaders(w)
			writeError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		ownerID, err := s.auth.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			setCORSHeaders(w)
			writeError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey, ownerID)))
	}
}

// ownerFrom returns the authenticated owner ID placed by requireAuth
func ownerFrom(r *http.Request) string {
	ownerID, _ := r.Context().Value(ownerKey).(string)
	return ownerID
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Accounts
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogIn)

	// Receipt pipeline and archive
	s.mux.HandleFunc("POST /api/receipts/scan", s.requireAuth(s.handleScanReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))

	// Ledger entries
	s.mux.HandleFunc("POST /api/entries/batch", s.requireAuth(s.handleCommitEntries))
	s.mux.HandleFunc("GET /api/entries/{id}", s.requireAuth(s.handleGetEntry))
	s.mux.HandleFunc("PUT /api/entries/{id}", s.requireAuth(s.handleUpdateEntry))
	s.mux.HandleFunc("DELETE /api/entries/{id}", s.requireAuth(s.handleDeleteEntry))
	s.mux.HandleFunc("GET /api/entries", s.requireAuth(s.handleListEntries))
	s.mux.HandleFunc("POST /api/entries", s.requireAuth(s.handleAddEntry))

	// Recurring payments
	s.mux.HandleFunc("POST /api/recurring/post-due", s.requireAuth(s.handlePostDueRecurring))
	s.mux.HandleFunc("DELETE /api/recurring/{id}", s.requireAuth(s.handleDeleteRecurring))
	s.mux.HandleFunc("GET /api/recurring", s.requireAuth(s.handleListRecurring))
	s.mux.HandleFunc("POST /api/recurring", s.requireAuth(s.handleAddRecurring))

	// Reports
	s.mux.HandleFunc("GET /api/reports/summary", s.requireAuth(s.handleSummary))
	s.mux.HandleFunc("GET /api/reports/export", s.requireAuth(s.handleExport))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.handleIndex)
	s.mux.HandleFunc("GET /", s.handleIndex)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s)
}

// ServeHTTP implements http.Handler. The CORS middleware wraps the whole mux
// so OPTIONS preflights are answered for every route, in tests and in
// production alike.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux.ServeHTTP)(w, r)
}
