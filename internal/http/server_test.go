package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"expensehub/internal/auth"
	"expensehub/internal/core"
	"expensehub/internal/log"
	"expensehub/internal/sequence"
	"expensehub/internal/services"
	"expensehub/internal/storage"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type ServerTestSuite struct {
	suite.Suite
	ctx      context.Context
	repo     *storage.SQLiteRepository
	tokens   *auth.TokenService
	expenses *services.ExpenseService
	srv      *Server

	orgID, otherOrgID  int64
	officeID, travelID int64
	projectID          int64
	user               core.User
}

func (s *ServerTestSuite) SetupTest() {
	s.ctx = context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "http.db"))
	s.Require().NoError(err)
	s.repo = repo

	must := func(id int64, err error) int64 {
		s.T().Helper()
		s.Require().NoError(err)
		return id
	}
	s.orgID = must(repo.EnsureOrganisation(s.ctx, "Acme"))
	s.otherOrgID = must(repo.EnsureOrganisation(s.ctx, "Globex"))
	s.officeID = must(repo.EnsureLocation(s.ctx, "Office"))
	s.Require().NoError(repo.LinkOrganisationLocation(s.ctx, s.orgID, s.officeID))
	s.travelID = must(repo.EnsureCategory(s.ctx, "Travel"))
	s.projectID = must(repo.EnsureProject(s.ctx, s.orgID, "ProjectX"))

	hash, err := auth.HashPassword("correct horse")
	s.Require().NoError(err)
	s.user, err = repo.CreateUser(s.ctx, "ada", hash)
	s.Require().NoError(err)
	s.Require().NoError(repo.AddOrganisationUser(s.ctx, s.orgID, s.user.ID))

	s.tokens = auth.NewTokenService(repo, auth.DefaultOrganisation{Title: "Acme"})
	s.expenses = services.NewExpenseService(services.ExpenseServiceConfig{
		Store:     repo,
		Tokens:    s.tokens,
		Resolver:  services.NewTitleResolver(repo, 16, time.Minute),
		Sequencer: sequence.NewStoreSequencer(repo),
		BatchMode: services.BestEffort,
	})
	s.srv = s.newServer(Options{RateLimitRPM: 1000}, map[string]Checker{"sqlite": repo})
}

func (s *ServerTestSuite) newServer(opts Options, checks map[string]Checker) *Server {
	sessions, err := auth.NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	s.Require().NoError(err)
	srv, err := NewServer(":0", Dependencies{
		Expenses: s.expenses,
		Sync:     services.NewSyncService(s.repo, s.tokens),
		Export:   services.NewExportService(s.repo),
		Auth:     s.tokens,
		Sessions: sessions,
		Checks:   checks,
		Logger:   log.New(log.Config{Output: io.Discard}),
	}, opts)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func (s *ServerTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *ServerTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// login signs in through the web form and returns the session cookie.
func (s *ServerTestSuite) login() *http.Cookie {
	rr := s.do(postForm("/login", url.Values{"username": {"ada"}, "password": {"correct horse"}}))
	s.Require().Equal(http.StatusSeeOther, rr.Code)
	s.Require().Equal("/", rr.Header().Get("Location"))
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	s.FailNow("session cookie not set")
	return nil
}

func (s *ServerTestSuite) authed(req *http.Request, c *http.Cookie) *http.Request {
	req.AddCookie(c)
	return req
}

func (s *ServerTestSuite) TestHealthAndReady() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("ok", rr.Body.String())

	rr = s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	s.Equal(http.StatusOK, rr.Code)

	s.srv = s.newServer(Options{}, map[string]Checker{
		"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	rr = s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	s.Contains(rr.Body.String(), "redis unavailable")
}

func (s *ServerTestSuite) TestMetricsEndpoint() {
	s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rr := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "expensehub_http_requests_total")
}

func (s *ServerTestSuite) TestSecurityHeadersAndRequestID() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("nosniff", rr.Header().Get("X-Content-Type-Options"))
	s.Equal("DENY", rr.Header().Get("X-Frame-Options"))
	s.NotEmpty(rr.Header().Get("Content-Security-Policy"))
	s.True(strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = s.do(req)
	s.Equal("abc-123", rr.Header().Get("X-Request-ID"))
}

func (s *ServerTestSuite) TestStaticAssets() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Header().Get("Cache-Control"), "max-age=3600")
}

func (s *ServerTestSuite) TestLoginFlow() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(http.StatusSeeOther, rr.Code)
	s.Equal("/login", rr.Header().Get("Location"))

	rr = s.do(postForm("/login", url.Values{"username": {"ada"}, "password": {"wrong"}}))
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Contains(rr.Body.String(), "wrong password")

	cookie := s.login()
	s.True(cookie.HttpOnly)

	rr = s.do(s.authed(httptest.NewRequest(http.MethodGet, "/", nil), cookie))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "Personal expenses")
	s.Contains(rr.Body.String(), `href="/organisations/`+fmt.Sprint(s.orgID)+`"`)

	rr = s.do(s.authed(postForm("/logout", nil), cookie))
	s.Equal(http.StatusSeeOther, rr.Code)
	cleared := rr.Result().Cookies()
	s.Require().Len(cleared, 1)
	s.Equal(-1, cleared[0].MaxAge)

	bad := &http.Cookie{Name: sessionCookie, Value: "not-a-jwt"}
	rr = s.do(s.authed(httptest.NewRequest(http.MethodGet, "/", nil), bad))
	s.Equal(http.StatusSeeOther, rr.Code)
}

func (s *ServerTestSuite) TestSessionForRemovedUserIsCleared() {
	token, err := s.srv.deps.Sessions.Issue(s.user.ID+100, "ghost")
	s.Require().NoError(err)

	rr := s.do(s.authed(httptest.NewRequest(http.MethodGet, "/", nil), &http.Cookie{Name: sessionCookie, Value: token}))
	s.Equal(http.StatusSeeOther, rr.Code)
	s.Equal("/login", rr.Header().Get("Location"))
	cleared := rr.Result().Cookies()
	s.Require().Len(cleared, 1)
	s.Equal(-1, cleared[0].MaxAge)
}

func (s *ServerTestSuite) TestPersonalFormset() {
	cookie := s.login()

	form := url.Values{
		"form-TOTAL_FORMS": {"3"},
		"form-0-location":  {fmt.Sprint(s.officeID)},
		"form-0-category":  {fmt.Sprint(s.travelID)},
		"form-0-amount":    {"12,50"},
		"form-1-location":  {fmt.Sprint(s.officeID)},
		"form-1-amount":    {"3"},
		"form-2-location":  {fmt.Sprint(s.officeID)},
		"form-2-category":  {fmt.Sprint(s.travelID)},
	}
	rr := s.do(s.authed(postForm("/", form), cookie))
	s.Require().Equal(http.StatusSeeOther, rr.Code, rr.Body.String())
	s.Equal("/", rr.Header().Get("Location"))

	page, err := s.expenses.ListPersonal(s.ctx, s.user, 1)
	s.Require().NoError(err)
	s.Equal(2, page.Total, "the blank third row is skipped")

	rr = s.do(s.authed(httptest.NewRequest(http.MethodGet, "/", nil), cookie))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "12.50")
	s.Contains(rr.Body.String(), `name="form-TOTAL_FORMS" value="3"`)
}

func (s *ServerTestSuite) TestPersonalFormsetRejections() {
	cookie := s.login()

	rr := s.do(s.authed(postForm("/", url.Values{
		"form-TOTAL_FORMS": {"2"},
		"form-0-location":  {fmt.Sprint(s.officeID)},
		"form-0-amount":    {"5"},
		"form-1-location":  {fmt.Sprint(s.officeID)},
		"form-1-amount":    {"abc"},
	}), cookie))
	s.Equal(http.StatusUnprocessableEntity, rr.Code)
	s.Contains(rr.Body.String(), `class="invalid"`)
	s.Contains(rr.Body.String(), `value="abc"`)

	page, err := s.expenses.ListPersonal(s.ctx, s.user, 1)
	s.Require().NoError(err)
	s.Zero(page.Total, "nothing is saved when any row is invalid")

	rr = s.do(s.authed(postForm("/", url.Values{"form-TOTAL_FORMS": {"1"}}), cookie))
	s.Equal(http.StatusUnprocessableEntity, rr.Code)
	s.Contains(rr.Body.String(), "at least one expense is required")

	rr = s.do(s.authed(postForm("/", url.Values{"form-TOTAL_FORMS": {"5000"}}), cookie))
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *ServerTestSuite) TestOrganisationPage() {
	cookie := s.login()
	orgPath := fmt.Sprintf("/organisations/%d", s.orgID)

	rr := s.do(s.authed(httptest.NewRequest(http.MethodGet, orgPath, nil), cookie))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "ProjectX")

	for _, path := range []string{
		fmt.Sprintf("/organisations/%d", s.otherOrgID),
		"/organisations/9999",
		"/organisations/abc",
	} {
		rr = s.do(s.authed(httptest.NewRequest(http.MethodGet, path, nil), cookie))
		s.Equal(http.StatusNotFound, rr.Code, path)
	}

	rr = s.do(s.authed(postForm(orgPath, url.Values{
		"form-TOTAL_FORMS": {"1"},
		"form-0-location":  {fmt.Sprint(s.officeID)},
		"form-0-project":   {fmt.Sprint(s.projectID)},
		"form-0-amount":    {"20"},
		"form-0-billed":    {"on"},
	}), cookie))
	s.Require().Equal(http.StatusSeeOther, rr.Code, rr.Body.String())
	s.Equal(orgPath, rr.Header().Get("Location"))

	page, err := s.expenses.ListOfficial(s.ctx, s.user, s.orgID, 1)
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	s.True(page.Items[0].Billed)
	s.NotEmpty(page.Items[0].BillID)
	s.Equal(core.Official, page.Items[0].Type)

	rr = s.do(s.authed(postForm(orgPath, url.Values{
		"form-TOTAL_FORMS": {"1"},
		"form-0-location":  {fmt.Sprint(s.officeID)},
		"form-0-amount":    {"20"},
	}), cookie))
	s.Equal(http.StatusUnprocessableEntity, rr.Code, "project is required")
}

func (s *ServerTestSuite) TestMobileLoginAndSync() {
	rr := s.do(postForm("/mobile/login", url.Values{"u": {"ada"}, "p": {"correct horse"}}))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("text/plain; charset=utf-8", rr.Header().Get("Content-Type"))

	parts := strings.Split(rr.Body.String(), "|")
	s.Require().Len(parts, 7)
	s.Equal(fmt.Sprint(s.user.ID), parts[0])
	s.Equal("ProjectX", parts[2])
	s.Equal(fmt.Sprint(s.projectID), parts[3])
	s.Equal("Travel", parts[4])
	s.Equal("Office", parts[5])
	key := parts[1]

	rr = s.do(httptest.NewRequest(http.MethodGet, "/mobile/sync?token="+url.QueryEscape(key), nil))
	s.Equal(http.StatusOK, rr.Code)
	s.True(strings.HasPrefix(rr.Body.String(), parts[0]+"|"+key+"|"))

	rr = s.do(httptest.NewRequest(http.MethodGet, "/mobile/login?u=ada&p=nope", nil))
	s.Equal(http.StatusNotFound, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/mobile/sync?token=unknown", nil))
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *ServerTestSuite) TestMobileExpenses() {
	tok, err := s.tokens.CreateLoginToken(s.ctx, s.user)
	s.Require().NoError(err)

	q := tok.Key + ",Office,12.50,,ProjectX,Travel,B-1,1700000000.5|" +
		tok.Key + ",Office,3,,,,,1700000100"
	rr := s.do(postForm("/mobile/expenses", url.Values{"q": {q}}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal("2", rr.Body.String())

	rr = s.do(httptest.NewRequest(http.MethodGet, "/mobile/expenses?q="+url.QueryEscape("nope,Office,1,,,,,1700000000"), nil))
	s.Equal(http.StatusNotFound, rr.Code)

	rr = s.do(postForm("/mobile/expenses", url.Values{"q": {tok.Key + ",Office,1"}}))
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(postForm("/mobile/expenses", url.Values{"q": {
		tok.Key + ",Office,4,,,,,1700000200|" + tok.Key + ",Nowhere,4,,,,,1700000300",
	}}))
	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal("1", rr.Header().Get("X-Expenses-Saved"))
}

func (s *ServerTestSuite) TestExport() {
	tok, err := s.tokens.CreateLoginToken(s.ctx, s.user)
	s.Require().NoError(err)
	rr := s.do(postForm("/mobile/expenses", url.Values{"q": {
		tok.Key + ",Office,12.50,,ProjectX,Travel,B-1,1700000000|" + tok.Key + ",Office,3,,,,,1700000100",
	}}))
	s.Require().Equal(http.StatusOK, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/export?format=csv", nil))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	s.Contains(rr.Header().Get("Content-Disposition"), `filename="expenses.csv"`)
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	s.Require().Len(lines, 2, "only project expenses are exported")
	s.Equal(strings.Join(core.ExportHeader, ","), lines[0])
	s.Contains(lines[1], "ProjectX")
	s.Contains(lines[1], "B-1")

	rr = s.do(httptest.NewRequest(http.MethodGet, "/export", nil))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Header().Get("Content-Type"), "spreadsheetml")
	s.True(strings.HasPrefix(rr.Body.String(), "PK"), "xlsx is a zip archive")

	rr = s.do(httptest.NewRequest(http.MethodGet, "/export?format=pdf", nil))
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *ServerTestSuite) TestRateLimitAppliesToPosts() {
	s.srv = s.newServer(Options{RateLimitRPM: 2}, nil)

	for i := 0; i < 2; i++ {
		rr := s.do(postForm("/mobile/sync", url.Values{"token": {"x"}}))
		s.Equal(http.StatusNotFound, rr.Code)
	}
	rr := s.do(postForm("/mobile/sync", url.Values{"token": {"x"}}))
	s.Equal(http.StatusTooManyRequests, rr.Code)
	s.Equal("60", rr.Header().Get("Retry-After"))

	rr = s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rr.Code)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestNewServerRejectsBadTrustedProxy(t *testing.T) {
	_, err := NewServer(":0", Dependencies{Logger: log.New(log.Config{Output: io.Discard})},
		Options{TrustedProxies: []string{"not-an-ip"}})
	require.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation int
		want       int
	}{
		{"not found", fmt.Errorf("token: %w", core.ErrNotFound), http.StatusBadRequest, http.StatusNotFound},
		{"credentials", core.ErrInvalidCredentials, http.StatusBadRequest, http.StatusNotFound},
		{"record", &core.RecordError{Index: 0, Err: core.ErrValidation}, http.StatusBadRequest, http.StatusBadRequest},
		{"rows", core.ValidationErrors{0: core.ErrNotFound}, http.StatusUnprocessableEntity, http.StatusUnprocessableEntity},
		{"other", errors.New("disk full"), http.StatusBadRequest, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err, tt.validation))
		})
	}
}

func TestReadFormset(t *testing.T) {
	form := url.Values{
		"form-TOTAL_FORMS": {"3"},
		"form-0-location":  {"1"},
		"form-0-amount":    {" 4.20 "},
		"form-0-billed":    {"on"},
		"form-0-project":   {"7"},
		"form-1-location":  {"1"},
		"form-2-billed":    {"on"},
	}

	rows, err := readFormset(form, true)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "4.20", rows[0].Amount)
	assert.True(t, rows[0].Billed)
	assert.True(t, rows[0].Selected("project", 7))

	official, verrs := officialRows(rows)
	assert.Nil(t, official)
	assert.Error(t, verrs.For(1), "billed row without amount")

	rows, err = readFormset(form, false)
	require.NoError(t, err)
	require.Len(t, rows, 1, "billed is ignored for personal rows")
	personal, verrs := personalRows(rows)
	require.Nil(t, verrs)
	assert.Equal(t, int64(420), personal[0].Amount.Cents)

	_, err = readFormset(url.Values{}, false)
	assert.ErrorIs(t, err, errTotalForms)
}
