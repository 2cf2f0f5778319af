package ledger

import (
	"math"
	"strings"
	"time"

	"github.com/billguard/billguard/internal/scanning"
)

// MapEntries converts validated extraction items into candidate ledger
// entries for the given owner. It is pure: no I/O, no IDs, no timestamps
// beyond the entry date, so mapping the same result twice on the same day
// yields identical candidates and the preview/confirm flow never needs to
// re-call the extraction service.
//
// The extraction date is used when present; otherwise the mapping-time date
// is substituted, reflecting when the user records the transaction.
func MapEntries(result *scanning.Result, ownerID string, now time.Time) ([]Entry, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	date := result.Date
	if date == "" {
		date = now.Format(DateLayout)
	}

	entries := make([]Entry, 0, len(result.Items))
	for _, item := range result.Items {
		name := strings.TrimSpace(item.Name)
		entries = append(entries, Entry{
			OwnerID:     ownerID,
			Kind:        KindExpense,
			Amount:      Cents(item.Price),
			Description: name,
			Category:    guessCategory(name),
			Date:        date,
		})
	}
	return entries, nil
}

// Cents converts a decimal amount to integer cents.
func Cents(amount float64) int {
	return int(math.Round(amount * 100))
}

// guessCategory takes the first whitespace-delimited token of the item name.
// Crude on purpose: the user reviews and can edit candidates before commit.
func guessCategory(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
