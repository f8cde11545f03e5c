package security

import (
	"net/http"
	"strconv"
	"strings"
)

// HeadersConfig lists the response headers set on every page. Empty values
// are skipped. HSTS is only sent on TLS connections.
type HeadersConfig struct {
	ContentSecurityPolicy []string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
	PermissionsPolicy  string
	OpenerPolicy       string
	ResourcePolicy     string
}

// DefaultHeadersConfig allows same-origin resources only. The forms post
// back to the server, so form-action stays at 'self'.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ContentSecurityPolicy: []string{
			"default-src 'self'",
			"script-src 'self'",
			"style-src 'self'",
			"img-src 'self' data:",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		},
		HSTSMaxAge:            365 * 24 * 60 * 60,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		OpenerPolicy:          "same-origin",
		ResourcePolicy:        "same-origin",
	}
}

// HeadersMiddleware stamps the configured headers on each response.
type HeadersMiddleware struct {
	static [][2]string
	hsts   string
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	h := &HeadersMiddleware{}
	add := func(name, value string) {
		if value != "" {
			h.static = append(h.static, [2]string{name, value})
		}
	}
	add("Content-Security-Policy", strings.Join(config.ContentSecurityPolicy, "; "))
	add("X-Frame-Options", config.FrameOptions)
	add("X-Content-Type-Options", config.ContentTypeOptions)
	add("Referrer-Policy", config.ReferrerPolicy)
	add("Permissions-Policy", config.PermissionsPolicy)
	add("Cross-Origin-Opener-Policy", config.OpenerPolicy)
	add("Cross-Origin-Resource-Policy", config.ResourcePolicy)

	if config.HSTSMaxAge > 0 {
		h.hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			h.hsts += "; includeSubDomains"
		}
	}
	return h
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		for _, kv := range h.static {
			header.Set(kv[0], kv[1])
		}
		if h.hsts != "" && r.TLS != nil {
			header.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware lets browsers cache the stylesheet for maxAge seconds.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	cacheControl := "public, max-age=" + strconv.Itoa(maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", cacheControl)
			}
			next.ServeHTTP(w, r)
		})
	}
}
