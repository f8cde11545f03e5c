// Package http serves the web pages, the mobile protocol endpoints, the
// spreadsheet export and the operational endpoints.
package http

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expensehub/internal/auth"
	"expensehub/internal/core"
	"expensehub/internal/log"
	"expensehub/internal/metrics"
	"expensehub/internal/middleware/ratelimit"
	"expensehub/internal/middleware/security"
	"expensehub/internal/middleware/trace"
	"expensehub/internal/services"
	"expensehub/internal/tracing"
	appweb "expensehub/web"
)

// Authenticator checks web login credentials and reloads session users.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (core.User, error)
	User(ctx context.Context, id int64) (core.User, error)
}

// Checker is a dependency probed by /readyz.
type Checker interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Expenses *services.ExpenseService
	Sync     *services.SyncService
	Export   *services.ExportService
	Auth     Authenticator
	Sessions *auth.SessionManager
	Checks   map[string]Checker
	Logger   *log.Logger
}

type Options struct {
	RateLimitRPM   int
	TrustedProxies []string
	SecureCookie   bool
}

type Server struct {
	http.Server
	deps      Dependencies
	opts      Options
	templates map[string]*template.Template
	limiter   *ratelimit.Limiter

	stopBackground context.CancelFunc
	shutdownOnce   sync.Once
}

// NewServer parses the embedded templates, registers every route and wraps
// the mux in the middleware chain. The returned server is ready to run.
func NewServer(addr string, deps Dependencies, opts Options) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	deps.Logger = deps.Logger.WithComponent(log.ComponentHTTP)

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	detector, err := security.NewDetector(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	s := &Server{
		deps:      deps,
		opts:      opts,
		templates: templates,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitRPM,
		}),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = tracing.Handler(metrics.HTTPMiddleware(mux), "expensehub")
	handler = s.limiter.Middleware(detector.ExtractClientIP)(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(deps.Logger, detector.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel
	go s.limiter.Cleanup(ctx)

	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(appweb.Static())))))

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.Handle("POST /logout", s.requireSession(http.HandlerFunc(s.handleLogout)))

	mux.Handle("GET /{$}", s.requireSession(http.HandlerFunc(s.handlePersonalPage)))
	mux.Handle("POST /{$}", s.requireSession(http.HandlerFunc(s.handlePersonalSubmit)))
	mux.Handle("GET /organisations/{id}", s.requireSession(http.HandlerFunc(s.handleOrganisationPage)))
	mux.Handle("POST /organisations/{id}", s.requireSession(http.HandlerFunc(s.handleOrganisationSubmit)))

	mux.HandleFunc("GET /export", s.handleExport)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		mux.HandleFunc(method+" /mobile/login", s.handleMobileLogin)
		mux.HandleFunc(method+" /mobile/expenses", s.handleMobileExpenses)
		mux.HandleFunc(method+" /mobile/sync", s.handleMobileSync)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Shutdown stops background work and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopBackground != nil {
			s.stopBackground()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady pings every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, c := range s.deps.Checks {
		if err := c.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				"check", name, log.FieldError, err)
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
