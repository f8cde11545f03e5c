package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensehub/internal/core"
	"expensehub/internal/log"
	"expensehub/internal/metrics"
	"expensehub/internal/mobile"
)

// PageSize is the number of expenses listed per page.
const PageSize = 10

// BatchMode selects how a mobile upload reacts to a failing record.
type BatchMode string

const (
	// BestEffort saves records one by one and stops at the first failure,
	// keeping what was already saved.
	BestEffort BatchMode = "best_effort"
	// Atomic parses and resolves every record first and saves all of them
	// in one transaction, or none.
	Atomic BatchMode = "atomic"
)

func (m BatchMode) Valid() bool {
	return m == BestEffort || m == Atomic
}

// Ingest sources, used for metrics and published events.
const (
	SourceWeb    = "web"
	SourceMobile = "mobile"
)

// ExpenseStore is the persistence used by ExpenseService.
type ExpenseStore interface {
	InsertExpense(ctx context.Context, e core.Expense) (int64, error)
	InsertExpenses(ctx context.Context, es []core.Expense) ([]int64, error)

	ListPersonalExpenses(ctx context.Context, userID int64, limit, offset int) ([]core.ExpenseDetail, error)
	CountPersonalExpenses(ctx context.Context, userID int64) (int, error)
	ListOrganisationExpenses(ctx context.Context, userID, orgID int64, limit, offset int) ([]core.ExpenseDetail, error)
	CountOrganisationExpenses(ctx context.Context, userID, orgID int64) (int, error)
	LatestPersonalInitial(ctx context.Context, userID int64) (core.ExpenseInitial, error)
	LatestOrganisationInitial(ctx context.Context, userID, orgID int64) (core.ExpenseInitial, error)

	OrganisationByID(ctx context.Context, id int64) (core.Organisation, error)
	IsMember(ctx context.Context, orgID, userID int64) (bool, error)
	ListUserOrganisations(ctx context.Context, userID int64) ([]core.Organisation, error)
	ListLocations(ctx context.Context) ([]core.Location, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListOrganisationLocations(ctx context.Context, orgID int64) ([]core.Location, error)
	ListOrganisationProjects(ctx context.Context, orgID int64) ([]core.Project, error)
}

// Tokens issues and resolves auth tokens.
type Tokens interface {
	Resolve(ctx context.Context, key string) (core.AuthToken, error)
	GetOrCreateSiteToken(ctx context.Context, user core.User) (core.AuthToken, error)
}

// Publisher announces persisted expenses. Failures never fail ingest.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, id int64, source string) error
}

// ExpenseService validates and persists expenses from the web formsets and
// the mobile upload endpoint.
type ExpenseService struct {
	store     ExpenseStore
	tokens    Tokens
	resolver  *TitleResolver
	sequencer core.BillSequencer
	seqName   string
	publisher Publisher
	mode      BatchMode
	now       func() time.Time
}

type ExpenseServiceConfig struct {
	Store     ExpenseStore
	Tokens    Tokens
	Resolver  *TitleResolver
	Sequencer core.BillSequencer
	// SequencerName labels bill sequence metrics, e.g. "sqlite" or "redis".
	SequencerName string
	// Publisher may be nil when messaging is disabled.
	Publisher Publisher
	BatchMode BatchMode
}

func NewExpenseService(cfg ExpenseServiceConfig) *ExpenseService {
	mode := cfg.BatchMode
	if !mode.Valid() {
		mode = BestEffort
	}
	name := cfg.SequencerName
	if name == "" {
		name = "sqlite"
	}
	return &ExpenseService{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		resolver:  cfg.Resolver,
		sequencer: cfg.Sequencer,
		seqName:   name,
		publisher: cfg.Publisher,
		mode:      mode,
		now:       time.Now,
	}
}

// BatchMode returns the configured mobile batch policy.
func (s *ExpenseService) BatchMode() BatchMode { return s.mode }

// FormOptions are the choices offered by a formset.
type FormOptions struct {
	Locations  []core.Location
	Categories []core.Category
	Projects   []core.Project
}

func (o FormOptions) hasLocation(id int64) bool {
	for _, l := range o.Locations {
		if l.ID == id {
			return true
		}
	}
	return false
}

func (o FormOptions) hasCategory(id int64) bool {
	if id == 0 {
		return true
	}
	for _, c := range o.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (o FormOptions) hasProject(id int64) bool {
	for _, p := range o.Projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

// PersonalOptions lists every location and category.
func (s *ExpenseService) PersonalOptions(ctx context.Context) (FormOptions, error) {
	locs, err := s.store.ListLocations(ctx)
	if err != nil {
		return FormOptions{}, err
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return FormOptions{}, err
	}
	return FormOptions{Locations: locs, Categories: cats}, nil
}

// locationStore lists locations for organisation forms and sync blobs.
type locationStore interface {
	ListLocations(ctx context.Context) ([]core.Location, error)
	ListOrganisationLocations(ctx context.Context, orgID int64) ([]core.Location, error)
}

// organisationLocations returns the locations linked to the organisation,
// or every location when none are linked.
func organisationLocations(ctx context.Context, store locationStore, orgID int64) ([]core.Location, error) {
	locs, err := store.ListOrganisationLocations(ctx, orgID)
	if err != nil || len(locs) > 0 {
		return locs, err
	}
	return store.ListLocations(ctx)
}

// OrganisationOptions lists the organisation's locations and projects plus
// every category.
func (s *ExpenseService) OrganisationOptions(ctx context.Context, orgID int64) (FormOptions, error) {
	locs, err := organisationLocations(ctx, s.store, orgID)
	if err != nil {
		return FormOptions{}, err
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return FormOptions{}, err
	}
	projects, err := s.store.ListOrganisationProjects(ctx, orgID)
	if err != nil {
		return FormOptions{}, err
	}
	return FormOptions{Locations: locs, Categories: cats, Projects: projects}, nil
}

// MemberOrganisation returns the organisation when the user belongs to it and
// core.ErrNotFound otherwise, so outsiders cannot probe organisation ids.
func (s *ExpenseService) MemberOrganisation(ctx context.Context, user core.User, orgID int64) (core.Organisation, error) {
	org, err := s.store.OrganisationByID(ctx, orgID)
	if err != nil {
		return core.Organisation{}, err
	}
	ok, err := s.store.IsMember(ctx, orgID, user.ID)
	if err != nil {
		return core.Organisation{}, err
	}
	if !ok {
		return core.Organisation{}, fmt.Errorf("organisation %d: %w", orgID, core.ErrNotFound)
	}
	return org, nil
}

// UserOrganisations lists the organisations the user is a member of.
func (s *ExpenseService) UserOrganisations(ctx context.Context, user core.User) ([]core.Organisation, error) {
	return s.store.ListUserOrganisations(ctx, user.ID)
}

var errNoRows = errors.New("at least one expense is required")

// CreatePersonalExpenses validates every row, then saves them all in one
// transaction against the user's site token.
func (s *ExpenseService) CreatePersonalExpenses(ctx context.Context, user core.User, rows []core.PersonalExpenseRow) ([]int64, error) {
	opts, err := s.PersonalOptions(ctx)
	if err != nil {
		return nil, err
	}

	verrs := core.ValidationErrors{}
	if len(rows) == 0 {
		verrs[-1] = errNoRows
	}
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			verrs[i] = err
			continue
		}
		if !opts.hasLocation(r.LocationID) {
			verrs[i] = fmt.Errorf("location %d: %w", r.LocationID, core.ErrNotFound)
		} else if !opts.hasCategory(r.CategoryID) {
			verrs[i] = fmt.Errorf("category %d: %w", r.CategoryID, core.ErrNotFound)
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	token, err := s.tokens.GetOrCreateSiteToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("site token: %w", err)
	}

	now := s.now().UTC()
	expenses := make([]core.Expense, len(rows))
	for i, r := range rows {
		expenses[i] = core.Expense{
			Amount:     r.Amount,
			Type:       core.Personal,
			LocationID: r.LocationID,
			CategoryID: r.CategoryID,
			TokenID:    token.ID,
			Time:       now,
		}
	}
	return s.persistAll(ctx, expenses, SourceWeb)
}

// CreateOfficialExpenses saves organisation expenses in one transaction.
// Billed rows get a bill id built from a freshly reserved sequence number.
func (s *ExpenseService) CreateOfficialExpenses(ctx context.Context, user core.User, orgID int64, rows []core.OfficialExpenseRow) ([]int64, error) {
	if _, err := s.MemberOrganisation(ctx, user, orgID); err != nil {
		return nil, err
	}
	opts, err := s.OrganisationOptions(ctx, orgID)
	if err != nil {
		return nil, err
	}

	verrs := core.ValidationErrors{}
	if len(rows) == 0 {
		verrs[-1] = errNoRows
	}
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			verrs[i] = err
			continue
		}
		switch {
		case !opts.hasProject(r.ProjectID):
			verrs[i] = fmt.Errorf("project %d is not part of this organisation: %w", r.ProjectID, core.ErrNotFound)
		case !opts.hasLocation(r.LocationID):
			verrs[i] = fmt.Errorf("location %d: %w", r.LocationID, core.ErrNotFound)
		case !opts.hasCategory(r.CategoryID):
			verrs[i] = fmt.Errorf("category %d: %w", r.CategoryID, core.ErrNotFound)
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	token, err := s.tokens.GetOrCreateSiteToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("site token: %w", err)
	}

	now := s.now().UTC()
	expenses := make([]core.Expense, len(rows))
	for i, r := range rows {
		e := core.Expense{
			Amount:     r.Amount,
			Type:       core.Official,
			LocationID: r.LocationID,
			CategoryID: r.CategoryID,
			ProjectID:  r.ProjectID,
			TokenID:    token.ID,
			Billed:     r.Billed,
			Time:       now,
		}
		if r.Billed {
			seq, err := s.sequencer.Next(ctx, token.ID, orgID)
			if err != nil {
				metrics.ObserveBillSequence(s.seqName, "error")
				return nil, fmt.Errorf("reserve bill number: %w", err)
			}
			metrics.ObserveBillSequence(s.seqName, "ok")
			e.BillID = core.BillID(user.ID, r.ProjectID, token.ID, seq)
		}
		expenses[i] = e
	}
	return s.persistAll(ctx, expenses, SourceWeb)
}

func (s *ExpenseService) persistAll(ctx context.Context, expenses []core.Expense, source string) ([]int64, error) {
	for i, e := range expenses {
		if err := e.Validate(); err != nil {
			return nil, core.ValidationErrors{i: err}
		}
	}
	ids, err := s.store.InsertExpenses(ctx, expenses)
	if err != nil {
		return nil, fmt.Errorf("save expenses: %w", err)
	}
	for i, id := range ids {
		s.announce(ctx, id, expenses[i], source)
	}
	return ids, nil
}

func (s *ExpenseService) announce(ctx context.Context, id int64, e core.Expense, source string) {
	metrics.ObserveExpense(source, string(e.Type))
	structured := log.NewStructuredLogger(log.FromContext(ctx).WithComponent(log.ComponentExpense))
	structured.LogExpenseCreated(ctx, id, string(e.Type), e.Amount.Cents, source)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseCreated(ctx, id, source); err != nil {
		structured.LogError(ctx, "Failed to publish expense created message", err, log.OpPublish,
			log.NewFields().WithExpense(id, string(e.Type), e.Amount.Cents, source))
	}
}

// PersonalInitial returns the pre-fill values for the personal formset.
func (s *ExpenseService) PersonalInitial(ctx context.Context, user core.User) (core.ExpenseInitial, error) {
	in, err := s.store.LatestPersonalInitial(ctx, user.ID)
	if errors.Is(err, core.ErrNotFound) {
		return core.ExpenseInitial{}, nil
	}
	return in, err
}

// OfficialInitial returns the pre-fill values for an organisation formset.
func (s *ExpenseService) OfficialInitial(ctx context.Context, user core.User, orgID int64) (core.ExpenseInitial, error) {
	in, err := s.store.LatestOrganisationInitial(ctx, user.ID, orgID)
	if errors.Is(err, core.ErrNotFound) {
		return core.ExpenseInitial{}, nil
	}
	return in, err
}

// Page is one page of an expense listing.
type Page struct {
	Items      []core.ExpenseDetail
	Number     int
	TotalPages int
	Total      int
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.TotalPages }
func (p Page) Prev() int     { return p.Number - 1 }
func (p Page) Next() int     { return p.Number + 1 }

// clampPage keeps n within 1..pages, treating an empty listing as one page.
func clampPage(n, total int) (number, pages int) {
	pages = (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	if n < 1 {
		n = 1
	}
	if n > pages {
		n = pages
	}
	return n, pages
}

func (s *ExpenseService) ListPersonal(ctx context.Context, user core.User, page int) (Page, error) {
	total, err := s.store.CountPersonalExpenses(ctx, user.ID)
	if err != nil {
		return Page{}, err
	}
	n, pages := clampPage(page, total)
	items, err := s.store.ListPersonalExpenses(ctx, user.ID, PageSize, (n-1)*PageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Number: n, TotalPages: pages, Total: total}, nil
}

func (s *ExpenseService) ListOfficial(ctx context.Context, user core.User, orgID int64, page int) (Page, error) {
	total, err := s.store.CountOrganisationExpenses(ctx, user.ID, orgID)
	if err != nil {
		return Page{}, err
	}
	n, pages := clampPage(page, total)
	items, err := s.store.ListOrganisationExpenses(ctx, user.ID, orgID, PageSize, (n-1)*PageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Number: n, TotalPages: pages, Total: total}, nil
}

// IngestResult reports what a mobile upload persisted.
type IngestResult struct {
	Saved int
	IDs   []int64
}

// IngestError is returned when a mobile upload stops early. Saved records
// how many expenses were persisted before the failure.
type IngestError struct {
	Saved int
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("mobile ingest stopped after %d saved: %v", e.Saved, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// IngestMobile parses, resolves and persists a mobile upload according to
// the configured batch mode.
func (s *ExpenseService) IngestMobile(ctx context.Context, q string) (IngestResult, error) {
	var (
		res IngestResult
		err error
	)
	switch s.mode {
	case Atomic:
		res, err = s.ingestAtomic(ctx, q)
	default:
		res, err = s.ingestBestEffort(ctx, q)
	}

	result := "ok"
	switch {
	case err == nil:
	case res.Saved > 0:
		result = "partial"
	default:
		result = "failed"
	}
	metrics.ObserveMobileBatch(string(s.mode), result)

	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentMobile).WarnContext(ctx, "Mobile upload rejected",
			"mode", s.mode,
			log.FieldRecords, res.Saved,
			log.FieldError, err)
		return res, &IngestError{Saved: res.Saved, Err: err}
	}
	return res, nil
}

func (s *ExpenseService) ingestBestEffort(ctx context.Context, q string) (IngestResult, error) {
	var res IngestResult
	if strings.TrimSpace(q) == "" {
		_, err := mobile.ParseBatch(q)
		return res, err
	}
	for i, raw := range strings.Split(q, mobile.RecordSep) {
		rec, err := mobile.ParseRecord(raw)
		if err != nil {
			return res, &core.RecordError{Index: i, Err: err}
		}
		e, err := s.resolveRecord(ctx, i, rec)
		if err != nil {
			return res, err
		}
		id, err := s.store.InsertExpense(ctx, e)
		if err != nil {
			return res, &core.RecordError{Index: i, Err: err}
		}
		res.Saved++
		res.IDs = append(res.IDs, id)
		s.announce(ctx, id, e, SourceMobile)
	}
	return res, nil
}

func (s *ExpenseService) ingestAtomic(ctx context.Context, q string) (IngestResult, error) {
	recs, err := mobile.ParseBatch(q)
	if err != nil {
		return IngestResult{}, err
	}
	expenses := make([]core.Expense, len(recs))
	for i, rec := range recs {
		if expenses[i], err = s.resolveRecord(ctx, i, rec); err != nil {
			return IngestResult{}, err
		}
	}
	ids, err := s.store.InsertExpenses(ctx, expenses)
	if err != nil {
		return IngestResult{}, fmt.Errorf("save expenses: %w", err)
	}
	for i, id := range ids {
		s.announce(ctx, id, expenses[i], SourceMobile)
	}
	return IngestResult{Saved: len(ids), IDs: ids}, nil
}

// resolveRecord turns a parsed record into an expense. The bill id is taken
// verbatim from the client.
func (s *ExpenseService) resolveRecord(ctx context.Context, i int, rec mobile.Record) (core.Expense, error) {
	token, err := s.tokens.Resolve(ctx, rec.TokenKey)
	if err != nil {
		return core.Expense{}, &core.RecordError{Index: i, Field: "token", Err: err}
	}
	if rec.Location == "" {
		return core.Expense{}, &core.RecordError{Index: i, Field: "location",
			Err: fmt.Errorf("%w: %w", core.ErrValidation, core.ErrMissingLocation)}
	}
	loc, err := s.resolver.Location(ctx, rec.Location)
	if err != nil {
		return core.Expense{}, &core.RecordError{Index: i, Field: "location", Err: err}
	}
	project, err := s.resolver.Project(ctx, rec.Project)
	if err != nil {
		return core.Expense{}, &core.RecordError{Index: i, Field: "project", Err: err}
	}
	category, err := s.resolver.Category(ctx, rec.Category)
	if err != nil {
		return core.Expense{}, &core.RecordError{Index: i, Field: "category", Err: err}
	}

	e := core.Expense{
		Amount:     rec.Amount,
		Type:       core.TypeFor(project.ID),
		LocationID: loc.ID,
		CategoryID: category.ID,
		ProjectID:  project.ID,
		TokenID:    token.ID,
		Billed:     rec.Billed(),
		BillID:     rec.BillID,
		Time:       rec.Time,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, &core.RecordError{Index: i, Err: fmt.Errorf("%w: %w", core.ErrValidation, err)}
	}
	return e, nil
}
