package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"expensehub/internal/core"
)

// Formsets use Django's management-form encoding: form-TOTAL_FORMS carries
// the row count and each field is posted as form-{i}-{field}.
const (
	totalFormsField = "form-TOTAL_FORMS"
	maxForms        = 100
	extraForms      = 3
)

var errTotalForms = errors.New("invalid form-TOTAL_FORMS")

func fieldName(i int, field string) string {
	return fmt.Sprintf("form-%d-%s", i, field)
}

// formRow is one formset row as submitted, kept as strings so it can be
// rendered back untouched when the submission is rejected.
type formRow struct {
	Location string
	Category string
	Project  string
	Amount   string
	Billed   bool
	Error    string
}

// Selected reports whether option id is the row's current choice for the
// given field.
func (r formRow) Selected(field string, id int64) bool {
	v := ""
	switch field {
	case "location":
		v = r.Location
	case "category":
		v = r.Category
	case "project":
		v = r.Project
	}
	return v == strconv.FormatInt(id, 10)
}

// blank rows are left out of the submission. The select fields are
// pre-filled, so a row counts as blank when nothing was typed in it.
func (r formRow) blank() bool {
	return r.Amount == "" && !r.Billed
}

// readFormset decodes the posted rows and drops blank ones.
func readFormset(form url.Values, official bool) ([]formRow, error) {
	total, err := strconv.Atoi(strings.TrimSpace(form.Get(totalFormsField)))
	if err != nil || total < 0 || total > maxForms {
		return nil, errTotalForms
	}

	rows := make([]formRow, 0, total)
	for i := 0; i < total; i++ {
		row := formRow{
			Location: sanitizeInput(form.Get(fieldName(i, "location"))),
			Category: sanitizeInput(form.Get(fieldName(i, "category"))),
			Amount:   sanitizeInput(form.Get(fieldName(i, "amount"))),
		}
		if official {
			row.Project = sanitizeInput(form.Get(fieldName(i, "project")))
			row.Billed = checkbox(form.Get(fieldName(i, "billed")))
		}
		if row.blank() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func checkbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// optionalID parses a select value where empty means absent.
func optionalID(v, what string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", what)
	}
	return id, nil
}

// personalRows maps the submitted rows onto core rows. Every unparseable
// row is reported, indexed like rows.
func personalRows(rows []formRow) ([]core.PersonalExpenseRow, core.ValidationErrors) {
	out := make([]core.PersonalExpenseRow, len(rows))
	verrs := core.ValidationErrors{}
	for i, r := range rows {
		loc, err := optionalID(r.Location, "location")
		if err != nil {
			verrs[i] = err
			continue
		}
		cat, err := optionalID(r.Category, "category")
		if err != nil {
			verrs[i] = err
			continue
		}
		amount, err := core.ParseMoney(r.Amount)
		if err != nil {
			verrs[i] = err
			continue
		}
		out[i] = core.PersonalExpenseRow{LocationID: loc, CategoryID: cat, Amount: amount}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	return out, nil
}

func officialRows(rows []formRow) ([]core.OfficialExpenseRow, core.ValidationErrors) {
	out := make([]core.OfficialExpenseRow, len(rows))
	verrs := core.ValidationErrors{}
	for i, r := range rows {
		loc, err := optionalID(r.Location, "location")
		if err != nil {
			verrs[i] = err
			continue
		}
		cat, err := optionalID(r.Category, "category")
		if err != nil {
			verrs[i] = err
			continue
		}
		project, err := optionalID(r.Project, "project")
		if err != nil {
			verrs[i] = err
			continue
		}
		amount, err := core.ParseMoney(r.Amount)
		if err != nil {
			verrs[i] = err
			continue
		}
		out[i] = core.OfficialExpenseRow{
			LocationID: loc,
			CategoryID: cat,
			ProjectID:  project,
			Amount:     amount,
			Billed:     r.Billed,
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	return out, nil
}

// attachErrors copies per-row problems onto rows and returns the message for
// the form as a whole, if any.
func attachErrors(rows []formRow, verrs core.ValidationErrors) string {
	for i := range rows {
		if err := verrs.For(i); err != nil {
			rows[i].Error = err.Error()
		}
	}
	if err := verrs.For(-1); err != nil {
		return err.Error()
	}
	return ""
}

// initialRows returns the empty rows offered on a fresh page, pre-filled
// from the user's latest expense.
func initialRows(in core.ExpenseInitial) []formRow {
	row := formRow{}
	if in.LocationID != 0 {
		row.Location = strconv.FormatInt(in.LocationID, 10)
	}
	if in.CategoryID != 0 {
		row.Category = strconv.FormatInt(in.CategoryID, 10)
	}
	if in.ProjectID != 0 {
		row.Project = strconv.FormatInt(in.ProjectID, 10)
	}
	rows := make([]formRow, extraForms)
	for i := range rows {
		rows[i] = row
	}
	return rows
}
