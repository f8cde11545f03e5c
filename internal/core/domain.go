package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Personal ExpenseType = "PERSONAL"
	Official ExpenseType = "OFFICIAL"
)

type (
	ExpenseType string

	Money struct {
		Cents int64
	}

	Organisation struct {
		ID    int64
		Title string
	}

	Location struct {
		ID    int64
		Title string
	}

	Category struct {
		ID    int64
		Title string
	}

	Project struct {
		ID             int64
		Title          string
		OrganisationID int64
	}

	User struct {
		ID           int64
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}

	// AuthToken is the opaque bearer credential used by mobile clients and,
	// when SiteToken is set, as the implicit identity of web submissions.
	AuthToken struct {
		ID             int64
		Key            string
		UserID         int64
		OrganisationID int64
		SiteToken      bool
		CreatedAt      time.Time
	}

	// Expense references its master data by id. Zero means absent for the
	// optional CategoryID and ProjectID.
	Expense struct {
		ID         int64
		Amount     Money
		Billed     bool
		Type       ExpenseType
		CategoryID int64
		LocationID int64
		ProjectID  int64
		TokenID    int64
		BillID     string
		Time       time.Time
		CreatedAt  time.Time
	}

	// ExpenseDetail is an expense joined with the titles it references.
	ExpenseDetail struct {
		Expense
		Username     string
		Organisation string
		Project      string
		Location     string
		Category     string
	}

	// PersonalExpenseRow is one row of the personal expenses formset.
	PersonalExpenseRow struct {
		LocationID int64
		CategoryID int64
		Amount     Money
	}

	// OfficialExpenseRow is one row of the organisation expenses formset.
	OfficialExpenseRow struct {
		LocationID int64
		CategoryID int64
		ProjectID  int64
		Amount     Money
		Billed     bool
	}

	// ExpenseInitial holds the values used to pre-fill new formset rows.
	ExpenseInitial struct {
		LocationID int64
		CategoryID int64
		ProjectID  int64
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingLocation  = errors.New("location is required")
	ErrMissingProject   = errors.New("project is required")
	ErrTypeMismatch     = errors.New("expense type does not match project")
	ErrUnbilledBillID   = errors.New("bill id set on unbilled expense")
	ErrMissingToken     = errors.New("token is required")
	ErrInvalidTitle     = errors.New("title must be non-empty and must not contain '|' or ','")
	ErrUnknownType      = errors.New("unknown expense type")
	ErrEmptyUsername    = errors.New("empty username")
	ErrMissingTimestamp = errors.New("expense time is required")
)

// TypeFor returns OFFICIAL when a project is present and PERSONAL otherwise.
func TypeFor(projectID int64) ExpenseType {
	if projectID != 0 {
		return Official
	}
	return Personal
}

func (t ExpenseType) Validate() error {
	switch t {
	case Personal, Official:
		return nil
	default:
		return ErrUnknownType
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.LocationID == 0 {
		return ErrMissingLocation
	}
	if e.TokenID == 0 {
		return ErrMissingToken
	}
	if err := e.Type.Validate(); err != nil {
		return err
	}
	if e.Type != TypeFor(e.ProjectID) {
		return ErrTypeMismatch
	}
	if !e.Billed && e.BillID != "" {
		return ErrUnbilledBillID
	}
	if e.Time.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

func (r PersonalExpenseRow) Validate() error {
	if r.LocationID == 0 {
		return ErrMissingLocation
	}
	return r.Amount.Validate()
}

func (r OfficialExpenseRow) Validate() error {
	if r.LocationID == 0 {
		return ErrMissingLocation
	}
	if r.ProjectID == 0 {
		return ErrMissingProject
	}
	return r.Amount.Validate()
}

// ValidTitle reports whether a master data title can travel through the
// delimited mobile protocol.
func ValidTitle(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	return !strings.ContainsAny(title, "|,")
}
