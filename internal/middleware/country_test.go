package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type assertError string

func (e assertError) Error() string { return string(e) }

type mapResolver map[string]string

func (m mapResolver) CountryCode(ip string) (string, error) {
	if code, ok := m[ip]; ok {
		return code, nil
	}
	return "", assertError("unknown ip")
}

func TestResolveCountry(t *testing.T) {
	resolver := mapResolver{"203.0.113.7": "nl"}
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		remote string
		want   string
	}{
		{
			name:   "proxy header wins",
			setup:  func(r *http.Request) { r.Header.Set("CF-IPCountry", "de") },
			remote: "203.0.113.7:1234",
			want:   "DE",
		},
		{
			name:   "database lookup",
			remote: "203.0.113.7:1234",
			want:   "NL",
		},
		{
			name:   "forwarded for is used",
			setup:  func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1") },
			remote: "10.0.0.2:80",
			want:   "NL",
		},
		{
			name:   "private address skipped",
			remote: "192.168.1.5:5000",
			want:   "",
		},
		{
			name:   "lookup error ignored",
			remote: "198.51.100.1:443",
			want:   "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.setup != nil {
				tc.setup(req)
			}
			if got := ResolveCountry(req, resolver); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountryMiddlewareStoresCode(t *testing.T) {
	var got string
	h := Country(mapResolver{"203.0.113.7": "fr"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:9999"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "FR" {
		t.Fatalf("CountryFromContext() = %q, want FR", got)
	}
}

func TestCountryMiddlewareWithoutResolver(t *testing.T) {
	var got string
	h := Country(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:9999"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "" {
		t.Fatalf("expected no country, got %q", got)
	}
}
