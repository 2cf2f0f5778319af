package ledger

import "time"

// DateLayout is the ISO calendar-date format used everywhere in the ledger.
const DateLayout = "2006-01-02"

// Entry kinds.
const (
	KindExpense = "expense"
	KindIncome  = "income"
)

// Entry is one persisted ledger record. Amount is in cents and never
// negative; Date is always resolved, never empty; OwnerID is the single
// owner allowed to read or change the entry.
type Entry struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Kind        string    `json:"kind"`
	Amount      int       `json:"amount"` // cents
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        string    `json:"date"` // YYYY-MM-DD
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecurringPayment is a template that can be posted into the ledger as an
// expense once per calendar month.
type RecurringPayment struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Description string    `json:"description"`
	Amount      int       `json:"amount"` // cents
	Category    string    `json:"category"`
	DayOfMonth  int       `json:"day_of_month"`
	Active      bool      `json:"active"`
	LastPosted  string    `json:"last_posted,omitempty"` // YYYY-MM of the last posting
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReceiptFile is the archival record for an uploaded receipt image. The
// extraction pipeline itself never reads it back; it exists so users can
// review the original document later.
type ReceiptFile struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
