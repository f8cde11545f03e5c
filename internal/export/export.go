// Package export serializes export rows into downloadable spreadsheets.
package export

import (
	"fmt"
	"io"
	"strconv"

	"expensehub/internal/core"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

// Format is a spreadsheet serialization.
type Format string

const (
	XLSX Format = "xlsx"
	CSV  Format = "csv"
)

// ParseFormat maps a query value to a Format. Empty selects XLSX.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", XLSX:
		return XLSX, nil
	case CSV:
		return CSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q: %w", s, core.ErrValidation)
	}
}

func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (f Format) Filename() string {
	return "expenses." + string(f)
}

// Write serializes rows in format f.
func Write(w io.Writer, f Format, rows []core.ExportRow) error {
	if f == CSV {
		return WriteCSV(w, rows)
	}
	return WriteXLSX(w, rows)
}

// WriteCSV writes a header row followed by one line per row.
func WriteCSV(w io.Writer, rows []core.ExportRow) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

const sheetName = "Expenses"

// WriteXLSX writes a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, rows []core.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	header := make([]any, len(core.ExportHeader))
	for i, h := range core.ExportHeader {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var amount any = r.Amount
		if v, err := strconv.ParseFloat(r.Amount, 64); err == nil {
			amount = v
		}
		values := []any{
			r.ID, r.Time, r.User, r.Organisation, r.Project, r.Location,
			r.Category, r.Type, amount, r.Billed, r.BillID,
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
