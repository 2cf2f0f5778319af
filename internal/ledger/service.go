package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/billguard/billguard/internal/scanning"
)

// IDGenerator generates unique IDs for persisted records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string { return uuid.NewString() }

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time { return time.Now() }

// Service runs the receipt-to-ledger pipeline and the manual ledger
// operations around it. Each scan action is one sequential flow:
// upload -> extract -> normalize -> map -> user review -> commit. Nothing
// is persisted to the ledger until the explicit commit step.
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameJunk   = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated filenames before archiving
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	base = filenameJunk.ReplaceAllString(base, "")
	base = strings.TrimSpace(filenameSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// AnalyzeReceipt archives the uploaded image, sends it through the
// extraction service and normalizes the response. No ledger entries are
// created here; the caller maps and commits separately.
func (s *Service) AnalyzeReceipt(ownerID, filename string, data []byte, contentType string) (*scanning.Result, *ReceiptFile, error) {
	if ownerID == "" {
		return nil, nil, ErrUnauthenticated
	}

	id := s.idGenerator.Generate()
	storedName := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))

	savedName, err := s.storage.Save(ownerID, storedName, data)
	if err != nil {
		return nil, nil, fmt.Errorf("archiving receipt: %w", err)
	}

	raw, err := s.scanner.Extract(data, contentType)
	if err != nil {
		slog.Error("Receipt extraction failed",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(ownerID, savedName)
		return nil, nil, err
	}

	result, err := scanning.Normalize(raw)
	if err != nil {
		slog.Error("Extraction response rejected", "filename", filename, "error", err)
		s.storage.Delete(ownerID, savedName)
		return nil, nil, err
	}
	if result.Dropped > 0 {
		slog.Warn("Dropped unusable extraction items", "filename", filename, "dropped", result.Dropped)
	}

	rf := &ReceiptFile{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    savedName,
		ContentType: contentType,
		CreatedAt:   s.timeSource.Now(),
	}
	if err := s.db.SaveReceiptFile(rf); err != nil {
		s.storage.Delete(ownerID, savedName)
		return nil, nil, fmt.Errorf("saving receipt record: %w", err)
	}

	return result, rf, nil
}

// PreviewEntries maps a normalized extraction into candidate entries the
// user can review before committing.
func (s *Service) PreviewEntries(result *scanning.Result, ownerID string) ([]Entry, error) {
	return MapEntries(result, ownerID, s.timeSource.Now())
}

// CommitEntries persists reviewed candidate entries as one user-facing
// action through a single batch write. On failure nothing from the batch is
// visible; the caller retries the whole batch or gives up.
func (s *Service) CommitEntries(candidates []Entry, ownerID string) ([]*Entry, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("at least one entry is required")
	}

	now := s.timeSource.Now()
	entries := make([]*Entry, 0, len(candidates))
	for i := range candidates {
		c := candidates[i]
		if c.OwnerID == "" {
			c.OwnerID = ownerID
		}
		if c.OwnerID != ownerID {
			return nil, fmt.Errorf("entry %q does not belong to the authenticated user", c.Description)
		}
		if err := validateEntry(&c); err != nil {
			return nil, err
		}
		c.ID = s.idGenerator.Generate()
		c.CreatedAt = now
		c.UpdatedAt = now
		entries = append(entries, &c)
	}

	if err := s.db.SaveEntries(entries); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return entries, nil
}

func validateEntry(e *Entry) error {
	if e.Kind == "" {
		e.Kind = KindExpense
	}
	if e.Kind != KindExpense && e.Kind != KindIncome {
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	if e.Amount < 0 {
		return fmt.Errorf("entry amount must not be negative")
	}
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" {
		return fmt.Errorf("entry description is required")
	}
	if e.Date == "" {
		return fmt.Errorf("entry date is required")
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return fmt.Errorf("entry date must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// AddEntry records a single manually entered income or expense.
func (s *Service) AddEntry(entry Entry, ownerID string) (*Entry, error) {
	committed, err := s.CommitEntries([]Entry{entry}, ownerID)
	if err != nil {
		return nil, err
	}
	return committed[0], nil
}

// GetEntry retrieves one of the owner's entries
func (s *Service) GetEntry(ownerID, id string) (*Entry, error) {
	return s.db.GetEntry(ownerID, id)
}

// ListEntries returns the owner's entries filtered by kind and date range.
// Empty filter values mean "no constraint".
func (s *Service) ListEntries(ownerID, kind, from, to string) ([]*Entry, error) {
	entries, err := s.db.ListEntries(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	filtered := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		if from != "" && e.Date < from {
			continue
		}
		if to != "" && e.Date > to {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}

// UpdateEntry replaces the mutable fields of one of the owner's entries.
func (s *Service) UpdateEntry(ownerID, id string, update Entry) (*Entry, error) {
	existing, err := s.db.GetEntry(ownerID, id)
	if err != nil {
		return nil, err
	}

	existing.Kind = update.Kind
	existing.Amount = update.Amount
	existing.Description = update.Description
	existing.Category = update.Category
	existing.Date = update.Date
	if err := validateEntry(existing); err != nil {
		return nil, err
	}
	existing.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveEntry(existing); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return existing, nil
}

// DeleteEntry removes one of the owner's entries
func (s *Service) DeleteEntry(ownerID, id string) error {
	return s.db.DeleteEntry(ownerID, id)
}

// AddRecurring registers a recurring payment template.
func (s *Service) AddRecurring(p RecurringPayment, ownerID string) (*RecurringPayment, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	p.OwnerID = ownerID
	p.Description = strings.TrimSpace(p.Description)
	if p.Description == "" {
		return nil, fmt.Errorf("recurring payment description is required")
	}
	if p.Amount < 0 {
		return nil, fmt.Errorf("recurring payment amount must not be negative")
	}
	if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
		return nil, fmt.Errorf("day of month must be between 1 and 31")
	}

	now := s.timeSource.Now()
	p.ID = s.idGenerator.Generate()
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.db.SaveRecurring(&p); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return &p, nil
}

// ListRecurring returns the owner's recurring payments
func (s *Service) ListRecurring(ownerID string) ([]*RecurringPayment, error) {
	return s.db.ListRecurring(ownerID)
}

// DeleteRecurring removes one of the owner's recurring payments
func (s *Service) DeleteRecurring(ownerID, id string) error {
	return s.db.DeleteRecurring(ownerID, id)
}

// PostDueRecurring materializes every active recurring payment that is due
// and not yet posted this calendar month into an expense entry. A payment
// posts at most once per month; a day-of-month past the month's end posts
// on the last day.
func (s *Service) PostDueRecurring(ownerID string) ([]*Entry, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	payments, err := s.db.ListRecurring(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing recurring payments: %w", err)
	}

	now := s.timeSource.Now()
	month := now.Format("2006-01")
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

	posted := make([]*Entry, 0)
	for _, p := range payments {
		if !p.Active || p.LastPosted == month {
			continue
		}
		day := p.DayOfMonth
		if day > lastDay {
			day = lastDay
		}
		if day > now.Day() {
			continue // not due yet this month
		}

		entry := &Entry{
			ID:          s.idGenerator.Generate(),
			OwnerID:     ownerID,
			Kind:        KindExpense,
			Amount:      p.Amount,
			Description: p.Description,
			Category:    p.Category,
			Date:        time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location()).Format(DateLayout),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.db.SaveEntry(entry); err != nil {
			return posted, &PersistenceError{Err: err}
		}

		p.LastPosted = month
		p.UpdatedAt = now
		if err := s.db.SaveRecurring(p); err != nil {
			return posted, &PersistenceError{Err: err}
		}
		posted = append(posted, entry)
	}
	return posted, nil
}

// ListReceiptFiles returns the owner's archived receipt uploads
func (s *Service) ListReceiptFiles(ownerID string) ([]*ReceiptFile, error) {
	return s.db.ListReceiptFiles(ownerID)
}

// GetReceiptFileData retrieves the stored image bytes for a receipt
func (s *Service) GetReceiptFileData(ownerID, id string) ([]byte, string, error) {
	rf, err := s.db.GetReceiptFile(ownerID, id)
	if err != nil {
		return nil, "", err
	}
	data, err := s.storage.Get(ownerID, rf.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("reading archived receipt: %w", err)
	}
	return data, rf.ContentType, nil
}
