// Package xlsx renders unmatched reports as a spreadsheet for the
// operators who assign them out-of-band.
package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

const sheetName = "Unmatched Reports"

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(reports []domain.UnmatchedReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	header := []any{"File Name", "Detected Type", "Percentage", "Reason", "Batch ID", "Storage Path", "Received At"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	for i, rep := range reports {
		pct := ""
		if rep.Percentage != nil {
			pct = fmt.Sprintf("%.1f%%", *rep.Percentage)
		}
		row := []any{
			rep.FileName,
			string(rep.DetectedType),
			pct,
			rep.Reason,
			rep.BatchID,
			rep.StoragePath,
			rep.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
