package http

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensehub/internal/core"
	"expensehub/internal/log"
	appweb "expensehub/web"
)

var pageTemplates = []string{"login.html", "personal.html", "organisation.html"}

var templateFuncs = template.FuncMap{
	"money":    func(m core.Money) string { return m.String() },
	"datetime": formatTime,
	"field":    fieldName,
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// parseTemplates builds one template set per page, each combining the
// shared layout and partials with the page's content block.
func parseTemplates() (map[string]*template.Template, error) {
	base, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(appweb.Templates(), "layout.html", "partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	out := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		t, err := template.Must(base.Clone()).ParseFS(appweb.Templates(), name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// render executes the page into a buffer first so a template error still
// produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := s.templates[name]
	if !ok {
		s.serverError(w, r, fmt.Errorf("template %s not loaded", name))
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.serverError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, log.OpRender,
		log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, ""))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// statusFor maps service errors onto HTTP statuses. validation is the
// status used for malformed input, 400 for the mobile protocol and 422 for
// web forms.
func statusFor(err error, validation int) int {
	var verrs core.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return validation
	case core.IsNotFound(err), errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusNotFound
	case core.IsValidation(err):
		return validation
	default:
		return http.StatusInternalServerError
	}
}

// writeText answers the mobile protocol, which is always text/plain.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pageNumber reads ?p=, defaulting to the first page.
func pageNumber(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("p")))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
