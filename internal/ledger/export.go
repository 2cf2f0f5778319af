package ledger

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Entries"

// ExportXLSX renders the owner's entries in a date range as an Excel
// workbook. Amounts are written in whole currency units so the file is
// readable without knowing about cents.
func (s *Service) ExportXLSX(ownerID, from, to string) ([]byte, error) {
	entries, err := s.ListEntries(ownerID, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("exporting entries: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Date", "Description", "Category", "Type", "Amount"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("resolving header cell: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for row, e := range entries {
		values := []any{
			e.Date,
			e.Description,
			e.Category,
			e.Kind,
			float64(e.Amount) / 100,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, fmt.Errorf("resolving cell: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("writing row: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
