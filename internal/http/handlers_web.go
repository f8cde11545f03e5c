package http

import (
	"errors"
	"fmt"
	"net/http"

	"expensehub/internal/core"
	"expensehub/internal/log"
	"expensehub/internal/services"
)

// expensesPage backs both the personal and the organisation page.
type expensesPage struct {
	Title         string
	User          *core.User
	Organisations []core.Organisation
	Organisation  *core.Organisation
	Action        string
	Options       services.FormOptions
	Rows          []formRow
	FormError     string
	Page          services.Page
}

func (p expensesPage) Official() bool { return p.Organisation != nil }

func (s *Server) handlePersonalPage(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	initial, err := s.deps.Expenses.PersonalInitial(r.Context(), user)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.renderPersonal(w, r, http.StatusOK, user, initialRows(initial), "")
}

func (s *Server) handlePersonalSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := userFromContext(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	submitted, err := readFormset(r.PostForm, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, verrs := personalRows(submitted)
	if verrs == nil {
		_, err = s.deps.Expenses.CreatePersonalExpenses(ctx, user, rows)
	} else {
		err = verrs
	}
	if err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if !errors.As(err, &verrs) {
		s.writeFormError(w, r, err)
		return
	}
	formErr := attachErrors(submitted, verrs)
	if len(submitted) == 0 {
		initial, ierr := s.deps.Expenses.PersonalInitial(ctx, user)
		if ierr != nil {
			s.serverError(w, r, ierr)
			return
		}
		submitted = initialRows(initial)
	}
	s.renderPersonal(w, r, http.StatusUnprocessableEntity, user, submitted, formErr)
}

func (s *Server) renderPersonal(w http.ResponseWriter, r *http.Request, status int, user core.User, rows []formRow, formErr string) {
	ctx := r.Context()
	opts, err := s.deps.Expenses.PersonalOptions(ctx)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	page, err := s.deps.Expenses.ListPersonal(ctx, user, pageNumber(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	orgs, err := s.deps.Expenses.UserOrganisations(ctx, user)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, status, "personal.html", expensesPage{
		Title:         "Personal expenses",
		User:          &user,
		Organisations: orgs,
		Action:        "/",
		Options:       opts,
		Rows:          rows,
		FormError:     formErr,
		Page:          page,
	})
}

func (s *Server) handleOrganisationPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := userFromContext(ctx)
	org, ok := s.memberOrganisation(w, r, user)
	if !ok {
		return
	}
	initial, err := s.deps.Expenses.OfficialInitial(ctx, user, org.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.renderOrganisation(w, r, http.StatusOK, user, org, initialRows(initial), "")
}

func (s *Server) handleOrganisationSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := userFromContext(ctx)
	org, ok := s.memberOrganisation(w, r, user)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	submitted, err := readFormset(r.PostForm, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, verrs := officialRows(submitted)
	var ids []int64
	if verrs == nil {
		ids, err = s.deps.Expenses.CreateOfficialExpenses(ctx, user, org.ID, rows)
	} else {
		err = verrs
	}
	if err == nil {
		log.FromContext(ctx).InfoContext(ctx, "Organisation expenses saved",
			log.FieldOrganisation, org.ID,
			log.FieldRecords, len(ids))
		http.Redirect(w, r, fmt.Sprintf("/organisations/%d", org.ID), http.StatusSeeOther)
		return
	}

	if !errors.As(err, &verrs) {
		s.writeFormError(w, r, err)
		return
	}
	formErr := attachErrors(submitted, verrs)
	if len(submitted) == 0 {
		initial, ierr := s.deps.Expenses.OfficialInitial(ctx, user, org.ID)
		if ierr != nil {
			s.serverError(w, r, ierr)
			return
		}
		submitted = initialRows(initial)
	}
	s.renderOrganisation(w, r, http.StatusUnprocessableEntity, user, org, submitted, formErr)
}

// memberOrganisation resolves {id} and answers 404 when the organisation
// does not exist or the user is not a member.
func (s *Server) memberOrganisation(w http.ResponseWriter, r *http.Request, user core.User) (core.Organisation, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return core.Organisation{}, false
	}
	org, err := s.deps.Expenses.MemberOrganisation(r.Context(), user, id)
	if core.IsNotFound(err) {
		http.NotFound(w, r)
		return core.Organisation{}, false
	}
	if err != nil {
		s.serverError(w, r, err)
		return core.Organisation{}, false
	}
	return org, true
}

func (s *Server) renderOrganisation(w http.ResponseWriter, r *http.Request, status int, user core.User, org core.Organisation, rows []formRow, formErr string) {
	ctx := r.Context()
	opts, err := s.deps.Expenses.OrganisationOptions(ctx, org.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	page, err := s.deps.Expenses.ListOfficial(ctx, user, org.ID, pageNumber(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	orgs, err := s.deps.Expenses.UserOrganisations(ctx, user)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, status, "organisation.html", expensesPage{
		Title:         org.Title,
		User:          &user,
		Organisations: orgs,
		Organisation:  &org,
		Action:        fmt.Sprintf("/organisations/%d", org.ID),
		Options:       opts,
		Rows:          rows,
		FormError:     formErr,
		Page:          page,
	})
}

// writeFormError handles submission failures that are not row problems.
func (s *Server) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	switch statusFor(err, http.StatusUnprocessableEntity) {
	case http.StatusNotFound:
		http.NotFound(w, r)
	case http.StatusUnprocessableEntity:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.serverError(w, r, err)
	}
}
