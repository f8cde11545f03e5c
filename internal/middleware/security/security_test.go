package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	d, err := NewDetector([]string{"10.1.2.3", "192.168.0.0/16"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct client", "203.0.113.5:4000", "198.51.100.1", "", "203.0.113.5"},
		{"trusted single proxy", "10.1.2.3:4000", "198.51.100.1, 10.1.2.3", "", "198.51.100.1"},
		{"trusted cidr proxy", "192.168.4.4:4000", "", "198.51.100.2", "198.51.100.2"},
		{"loopback always trusted", "127.0.0.1:4000", "198.51.100.3", "", "198.51.100.3"},
		{"untrusted neighbour", "10.1.2.4:4000", "198.51.100.1", "", "10.1.2.4"},
		{"garbage header", "10.1.2.3:4000", "not-an-ip", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, d.ExtractClientIP(r))
		})
	}
}

func TestNewDetectorRejectsBadProxy(t *testing.T) {
	_, err := NewDetector([]string{"not-a-proxy"})
	assert.Error(t, err)
}

func TestDetectSuspiciousRequest(t *testing.T) {
	d, err := NewDetector(nil)
	require.NoError(t, err)

	assert.False(t, d.DetectSuspiciousRequest(httptest.NewRequest(http.MethodPost, "/mobile/expenses", nil)))
	assert.True(t, d.DetectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/.env", nil)))
	assert.True(t, d.DetectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/export?next=../../etc/passwd", nil)))
	assert.False(t, d.DetectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/export?format=csv", nil)))
	assert.True(t, d.DetectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/wp-admin/login", nil)))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "sqlmap/1.7")
	assert.True(t, d.DetectSuspiciousRequest(r))
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
