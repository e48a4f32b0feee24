package middleware

import (
	"context"
	"net/http"
	"strings"

	authority "github.com/axisboard/authority"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validation result attached by [Guard].
func AuthResultFromContext(ctx context.Context) (*authority.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authority.AuthResult)
	return res, ok
}

// Guard validates the bearer access token on every request and attaches
// the result to the request context. Requests without a valid token get
// 401 with no detail.
func Guard(engine *authority.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GuardWithSession behaves like [Guard] and additionally touches the
// session carried in the token, enforcing idle and absolute timeouts. A
// timed-out session gets 401 even when the token itself is still valid.
func GuardWithSession(engine *authority.Engine) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || res.SessionID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.TouchSession(r.Context(), res.SessionID); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
