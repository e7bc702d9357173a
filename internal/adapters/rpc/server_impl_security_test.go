package rpc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewServerRequiresTokenWhenConfigured(t *testing.T) {
	_, err := NewServer(nil, Options{RequireToken: true, Token: "   "})
	if !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}

func TestExtractRPCToken_PrefersCustomHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/rpc", nil)
	req.Header.Set(rpcTokenHeader, "header-token")
	req.Header.Set("Authorization", "Bearer bearer-token")

	s := &Server{}
	got := s.extractRPCToken(req)
	if got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestExtractRPCToken_UsesBearerHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/rpc", nil)
	req.Header.Set("Authorization", "Bearer bearer-token")

	s := &Server{}
	got := s.extractRPCToken(req)
	if got != "bearer-token" {
		t.Fatalf("expected bearer token, got %q", got)
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigins: []string{"https://registry.example.org/"}})
	cases := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://127.0.0.1:8787", true},
		{"http://[::1]:8787", true},
		{"https://registry.example.org", true},
		{"https://example.com", false},
		{"null", false},
		{"not-a-url", false},
	}
	for _, tc := range cases {
		if got := s.isAllowedOrigin(tc.origin); got != tc.want {
			t.Fatalf("origin %q: got %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestRPCRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := rpcCallWithHeaders(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check"}`, map[string]string{"Origin": "https://evil.example"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = rpcCallWithHeaders(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check"}`, map[string]string{"Origin": "http://localhost:5173"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for loopback origin, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header %q", got)
	}
}

func TestRPCRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := rpcRateLimitKey(req, ""); got != "ip:10.0.0.7" {
		t.Fatalf("unexpected ip key %q", got)
	}
	if got := rpcRateLimitKey(req, "tok"); got != "token:tok" {
		t.Fatalf("unexpected token key %q", got)
	}
}
