package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/billguard/billguard/internal/auth"
	"github.com/billguard/billguard/internal/scanning"
)

// writeJSON encodes a JSON response body
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps pipeline and persistence errors to HTTP status codes.
// Upstream extraction failures are the gateway's fault (502), unusable
// model output is unprocessable (422), bad uploads are the client's (400).
func statusFor(err error) int {
	var serviceErr *scanning.ServiceError
	var malformedErr *scanning.MalformedResponseError
	var persistErr *PersistenceError

	switch {
	case errors.Is(err, scanning.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &serviceErr):
		return http.StatusBadGateway
	case errors.As(err, &malformedErr), errors.Is(err, scanning.ErrEmptyExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleSignUp creates an account
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.auth.SignUp(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, "An account with that email already exists", http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID,
		"email": user.Email,
	})
}

// handleLogIn exchanges credentials for a bearer token
func (s *Server) handleLogIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.auth.LogIn(req.Email, req.Password)
	if err != nil {
		writeError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleScanReceipt runs the upload through extraction and returns the
// candidate entries for review. Nothing is added to the ledger here.
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	// 50MB to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	ownerID := ownerFrom(r)
	result, rf, err := s.service.AnalyzeReceipt(ownerID, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}

	candidates, err := s.service.PreviewEntries(result, ownerID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"extraction": result,
		"entries":    candidates,
		"receipt":    rf,
	})
}

// handleListReceipts returns the owner's archived receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceiptFiles(ownerFrom(r))
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if receipts == nil {
		receipts = []*ReceiptFile{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceiptFile returns the stored image for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFileData(ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleCommitEntries persists a reviewed batch of candidate entries
func (s *Server) handleCommitEntries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entries, err := s.service.CommitEntries(req.Entries, ownerFrom(r))
	if err != nil {
		slog.Error("Error committing entries", "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, entries)
}

// handleAddEntry records one manual entry
func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.service.AddEntry(entry, ownerFrom(r))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleListEntries returns the owner's entries, optionally filtered
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.service.ListEntries(ownerFrom(r), q.Get("kind"), q.Get("from"), q.Get("to"))
	if err != nil {
		slog.Error("Error listing entries", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// handleGetEntry returns a single entry
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.GetEntry(ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, "Entry not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleUpdateEntry replaces an entry's mutable fields
func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var update Entry
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := s.service.UpdateEntry(ownerFrom(r), r.PathValue("id"), update)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteEntry removes an entry
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteEntry(ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, "Entry not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAddRecurring registers a recurring payment
func (s *Server) handleAddRecurring(w http.ResponseWriter, r *http.Request) {
	var p RecurringPayment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.service.AddRecurring(p, ownerFrom(r))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleListRecurring returns the owner's recurring payments
func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	payments, err := s.service.ListRecurring(ownerFrom(r))
	if err != nil {
		slog.Error("Error listing recurring payments", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if payments == nil {
		payments = []*RecurringPayment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// handleDeleteRecurring removes a recurring payment
func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecurring(ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, "Recurring payment not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePostDueRecurring materializes due recurring payments into entries
func (s *Server) handlePostDueRecurring(w http.ResponseWriter, r *http.Request) {
	posted, err := s.service.PostDueRecurring(ownerFrom(r))
	if err != nil {
		slog.Error("Error posting recurring payments", "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"posted": posted})
}

// handleSummary returns the dashboard aggregation
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := s.service.Summarize(ownerFrom(r), q.Get("from"), q.Get("to"))
	if err != nil {
		slog.Error("Error building summary", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleExport streams an XLSX workbook of the owner's entries
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := s.service.ExportXLSX(ownerFrom(r), q.Get("from"), q.Get("to"))
	if err != nil {
		slog.Error("Error exporting entries", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="entries.xlsx"`)
	w.Write(data)
}
