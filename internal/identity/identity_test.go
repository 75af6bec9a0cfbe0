package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSessionIDIsValidAndUnique(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 14, 25, 30, 0, time.UTC)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID(now)
		if !strings.HasPrefix(id, "20261017_142530_") {
			t.Fatalf("unexpected id prefix: %s", id)
		}
		if !ValidSessionID(id) {
			t.Fatalf("generated id failed validation: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidSessionID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"20261017_142530_1f9c04ab": true,
		"legacy-session.1":         true,
		"":                         false,
		".":                        false,
		"../etc/passwd":            false,
		"a..b":                     false,
		"with space":               false,
		strings.Repeat("x", 129):   false,
	}
	for id, want := range cases {
		if got := ValidSessionID(id); got != want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestMiddlewareInjectsSessionID(t *testing.T) {
	t.Parallel()

	var got string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws/interview?session_id=abc_123", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "abc_123" {
		t.Fatalf("expected session from query, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/interview", nil)
	req.Header.Set(SessionHeaderName, "hdr-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "hdr-1" {
		t.Fatalf("expected session from header, got %q", got)
	}
}

func TestMiddlewareRejectsInvalidSessionID(t *testing.T) {
	t.Parallel()

	called := false
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws/interview?session_id=..%2Fx", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if called {
		t.Fatal("handler should not run for invalid session id")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
