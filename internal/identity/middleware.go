package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// SessionHeaderName carries the bearer token minted on authentication.
const SessionHeaderName = "X-Session-Token"

type contextKey int

const (
	sessionKeyKey contextKey = iota
	tokenKey
)

var tokenPattern = regexp.MustCompile(`^[a-f0-9-]{36}$`)

// TokenResolver maps a bearer token to a session key.
type TokenResolver interface {
	KeyForToken(token string) (string, error)
}

// SessionKeyFromContext extracts the verified session key from the request
// context.
func SessionKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKeyKey).(string); ok {
		return v
	}
	return ""
}

// TokenFromContext extracts the session token from the request context.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// WithSession returns a context carrying a resolved session.
func WithSession(ctx context.Context, key, token string) context.Context {
	ctx = context.WithValue(ctx, sessionKeyKey, key)
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromRequest reads the session token from the header or, for
// websocket upgrades, the query string.
func TokenFromRequest(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(SessionHeaderName))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("session_token"))
	}
	if !tokenPattern.MatchString(token) {
		return ""
	}
	return token
}

// Middleware rejects requests without a live session token and injects the
// session key into the request context.
func Middleware(sessions TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}
			key, err := sessions.KeyForToken(token)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), key, token)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"session not found, please authenticate"}`))
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
