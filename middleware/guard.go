package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/zuauth"
)

type sessionContextKey struct{}
type userContextKey struct{}

// SessionFromContext returns the session attached by [LoadSession].
func SessionFromContext(ctx context.Context) (*zuauth.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*zuauth.Session)
	return sess, ok && sess != nil
}

// UserFromContext returns the user attached by [RequireUser].
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userContextKey{}).(string)
	return user, ok && user != ""
}

// LoadSession resolves the session cookie once per request and attaches the
// session, client IP and User-Agent to the request context.
func LoadSession(engine *zuauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := engine.LoadSession(r)
			if err != nil {
				http.Error(w, zuauth.Reason(err), zuauth.HTTPStatus(err))
				return
			}

			ctx := zuauth.WithClientIP(r.Context(), ClientIP(r))
			ctx = zuauth.WithUserAgent(ctx, r.UserAgent())
			ctx = context.WithValue(ctx, sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser lets the request through only when its session carries an
// authenticated user. Everything else gets 401.
func RequireUser(engine *zuauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())
			user, err := engine.CurrentUser(sess)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		return LoadSession(engine)(guarded)
	}
}

// ClientIP is the host part of the request's remote address. Forwarding
// headers are not trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
