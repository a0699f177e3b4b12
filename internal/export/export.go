// Package export renders queue entries to an Excel workbook for offline
// diagnostics of stuck or dead entries.
package export

import (
	"fmt"
	"io"
	"time"

	"finqueue/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Queue"

var headers = []string{"ID", "Type", "Status", "Retries", "Last Error", "Created At", "Last Attempt", "Payload"}

// Write renders the entries as an xlsx workbook to w.
func Write(w io.Writer, entries []models.QueueEntry) error {
	f, err := build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %v", err)
	}
	return nil
}

// WriteFile renders the entries as an xlsx workbook at path.
func WriteFile(path string, entries []models.QueueEntry) error {
	f, err := build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook: %v", err)
	}
	return nil
}

func build(entries []models.QueueEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for row, e := range entries {
		values := []interface{}{
			e.ID,
			e.Type,
			e.Status,
			e.Retries,
			derefOr(e.LastError, ""),
			e.CreatedAt.Format(time.RFC3339),
			formatTime(e.LastAttemptAt),
			string(e.Payload),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "G", 22)
	_ = f.SetColWidth(sheetName, "H", "H", 60)

	return f, nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
