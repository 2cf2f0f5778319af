package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// CategoryTotal is the spend for one expense category
type CategoryTotal struct {
	Category string `json:"category"`
	Total    int    `json:"total"`
}

// MonthTotal aggregates income and expenses for one calendar month
type MonthTotal struct {
	Month    string `json:"month"` // YYYY-MM
	Income   int    `json:"income"`
	Expenses int    `json:"expenses"`
}

// Summary is the dashboard aggregation over a date range. Amounts are
// cents, like the entries they are computed from.
type Summary struct {
	TotalIncome   int             `json:"total_income"`
	TotalExpenses int             `json:"total_expenses"`
	Balance       int             `json:"balance"`
	ByCategory    []CategoryTotal `json:"by_category"`
	Monthly       []MonthTotal    `json:"monthly"`
}

// Summarize aggregates the owner's entries in the given date range.
// Empty from/to mean an open-ended range. ByCategory covers expenses only,
// sorted by spend descending; Monthly is chronological.
func (s *Service) Summarize(ownerID, from, to string) (*Summary, error) {
	entries, err := s.ListEntries(ownerID, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("summarizing entries: %w", err)
	}

	summary := &Summary{
		ByCategory: []CategoryTotal{},
		Monthly:    []MonthTotal{},
	}
	byCategory := make(map[string]int)
	byMonth := make(map[string]*MonthTotal)

	for _, e := range entries {
		month := e.Date
		if len(month) >= 7 {
			month = month[:7]
		}
		mt, ok := byMonth[month]
		if !ok {
			mt = &MonthTotal{Month: month}
			byMonth[month] = mt
		}

		switch e.Kind {
		case KindIncome:
			summary.TotalIncome += e.Amount
			mt.Income += e.Amount
		default:
			summary.TotalExpenses += e.Amount
			mt.Expenses += e.Amount
			category := e.Category
			if category == "" {
				category = "Other"
			}
			byCategory[category] += e.Amount
		}
	}
	summary.Balance = summary.TotalIncome - summary.TotalExpenses

	for category, total := range byCategory {
		summary.ByCategory = append(summary.ByCategory, CategoryTotal{Category: category, Total: total})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		if summary.ByCategory[i].Total != summary.ByCategory[j].Total {
			return summary.ByCategory[i].Total > summary.ByCategory[j].Total
		}
		return strings.Compare(summary.ByCategory[i].Category, summary.ByCategory[j].Category) < 0
	})

	for _, mt := range byMonth {
		summary.Monthly = append(summary.Monthly, *mt)
	}
	sort.Slice(summary.Monthly, func(i, j int) bool {
		return summary.Monthly[i].Month < summary.Monthly[j].Month
	})

	return summary, nil
}
