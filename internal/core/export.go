package core

import (
	"strconv"
	"time"
)

// ExportHeader is the header row of every spreadsheet export.
var ExportHeader = []string{
	"ID", "Time", "User", "Organisation", "Project", "Location",
	"Category", "Type", "Amount", "Billed", "BillID",
}

// ExportRow is the flattened, display-ready form of a project expense.
type ExportRow struct {
	ID           int64  `csv:"ID"`
	Time         string `csv:"Time"`
	User         string `csv:"User"`
	Organisation string `csv:"Organisation"`
	Project      string `csv:"Project"`
	Location     string `csv:"Location"`
	Category     string `csv:"Category"`
	Type         string `csv:"Type"`
	Amount       string `csv:"Amount"`
	Billed       string `csv:"Billed"`
	BillID       string `csv:"BillID"`
}

// NewExportRow maps a joined expense to its export representation.
func NewExportRow(d ExpenseDetail) ExportRow {
	return ExportRow{
		ID:           d.ID,
		Time:         d.Time.UTC().Format(time.RFC3339),
		User:         d.Username,
		Organisation: d.Organisation,
		Project:      d.Project,
		Location:     d.Location,
		Category:     d.Category,
		Type:         string(d.Type),
		Amount:       d.Amount.String(),
		Billed:       strconv.FormatBool(d.Billed),
		BillID:       d.BillID,
	}
}

// Values returns the row's cells in ExportHeader order.
func (r ExportRow) Values() []string {
	return []string{
		strconv.FormatInt(r.ID, 10), r.Time, r.User, r.Organisation, r.Project,
		r.Location, r.Category, r.Type, r.Amount, r.Billed, r.BillID,
	}
}
