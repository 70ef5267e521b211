package middleware

import (
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ClientIP rewrites RemoteAddr from X-Forwarded-For and X-Real-IP only when
// the server sits behind a proxy that sets those headers. Otherwise the
// headers are client-controlled and RemoteAddr is left alone.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return chiMiddleware.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}
