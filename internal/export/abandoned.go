package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tillsync/internal/models"

	"github.com/xuri/excelize/v2"
)

// WriteAbandonedReport writes the abandoned-item list to an .xlsx
// workbook under dir and returns the file path. Operators pull this off
// the terminal when the backend flags the device.
func WriteAbandonedReport(dir string, items []models.AbandonedItem) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Abandoned"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Kind", "Attempts", "Last Error", "Enqueued At", "Abandoned At", "Payload"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "G1", headerStyle)

	for row, item := range items {
		lastError := ""
		if item.LastError != nil {
			lastError = *item.LastError
		}
		values := []interface{}{
			item.ID,
			item.Kind,
			item.AttemptCount,
			lastError,
			item.EnqueuedAt.Format(time.RFC3339),
			item.AbandonedAt.Format(time.RFC3339),
			item.Payload,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "F", 22)
	_ = f.SetColWidth(sheetName, "G", "G", 60)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("abandoned_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	path := filepath.Join(dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving export: %w", err)
	}
	return path, nil
}
