package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDReusedWhenSafe(t *testing.T) {
	var got string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "client-req_42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "client-req_42", got)
	assert.Equal(t, "client-req_42", rec.Header().Get(CorrelationIDHeader))
}

func TestCorrelationIDReplacedWhenUnsafe(t *testing.T) {
	for _, bad := range []string{
		"",
		"has spaces",
		"semi;colon",
		"new\nline",
		strings.Repeat("x", 65),
	} {
		var got string
		h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = CorrelationIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if bad != "" {
			req.Header.Set(CorrelationIDHeader, bad)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEmpty(t, got, "id must always be assigned")
		assert.NotEqual(t, bad, got, "unsafe header value %q must be replaced", bad)
	}
}

func TestIPAllowlist(t *testing.T) {
	allow, err := ParseCIDRAllowlist([]string{"10.0.0.0/8", "192.168.1.7", " "})
	require.NoError(t, err)
	require.Len(t, allow, 2)

	h := IPAllowlist(allow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		addr string
		code int
	}{
		{"10.1.2.3:1234", http.StatusOK},
		{"192.168.1.7:9999", http.StatusOK},
		{"192.168.1.8:9999", http.StatusForbidden},
		{"8.8.8.8:53", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code, tc.addr)
	}
}

func TestIPAllowlistEmptyAllowsAll(t *testing.T) {
	h := IPAllowlist(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseCIDRAllowlistRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"not-an-ip", "10.0.0.0/99", "256.1.1.1"} {
		_, err := ParseCIDRAllowlist([]string{bad})
		assert.Error(t, err, bad)
	}
}
