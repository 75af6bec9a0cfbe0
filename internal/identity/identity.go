// Package identity provides interview session identifiers and request-scoped
// session lookup.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionHeaderName carries the session ID on requests that have no path parameter.
	SessionHeaderName = "X-Interview-Session-ID"
	// SessionQueryParam is the query-string fallback for SessionHeaderName.
	SessionQueryParam = "session_id"
	sessionIDLayout   = "20060102_150405"
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// NewSessionID returns a timestamp-derived identifier with a random suffix,
// e.g. 20261017_142530_1f9c04ab.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format(sessionIDLayout) + "_" + suffix
}

// ValidSessionID reports whether id is safe to use as a key and a file name.
func ValidSessionID(id string) bool {
	if !sessionIDPattern.MatchString(id) {
		return false
	}
	return id != "." && !strings.Contains(id, "..")
}

// WithSessionID stores the session ID in ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	return strings.TrimSpace(sid)
}

// Middleware injects the session ID named by the request header or query
// string. Requests without one pass through untouched; malformed IDs are
// rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := sessionIDFromRequest(r)
		if sid == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !ValidSessionID(sid) {
			http.Error(w, `{"error":"invalid session id"}`, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sid)))
	})
}

// IPFromRequest returns a normalized remote IP for request logging.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
