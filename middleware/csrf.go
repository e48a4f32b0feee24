package middleware

import (
	"net/http"

	authority "github.com/axisboard/authority"
	"github.com/axisboard/authority/csrf"
)

// CSRFHeader is the request header carrying the double-submit token.
const CSRFHeader = "X-CSRF-Token"

// CSRFCookie is the cookie name carrying the double-submit token.
const CSRFCookie = "csrf_token"

// RequireCSRF enforces the double-submit check on state-changing methods.
// Safe methods pass through untouched. The comparison is constant-time;
// a missing header or cookie fails.
func RequireCSRF(engine *authority.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if csrf.SafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			var cookieValue string
			if c, err := r.Cookie(CSRFCookie); err == nil {
				cookieValue = c.Value
			}

			if !engine.ValidateCSRF(r.Header.Get(CSRFHeader), cookieValue) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
