package middleware

import (
	"context"
	"net/http"
	"strings"

	credlock "github.com/credlock/credlock"
)

type accountIDContextKey struct{}

// AccountIDFromContext returns the account id the guard attached after a
// successful validation.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDContextKey{}).(string)
	return id, ok
}

// Guard wraps a handler with session validation. The request must carry a
// signed session envelope as a bearer token; the guard opens it and checks
// the embedded token against the account's current session. Requests
// presenting a superseded token are rejected, which is how an older login
// learns it was signed out.
func Guard(engine *credlock.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			envelope, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			accountID, err := engine.ValidateSignedSession(r.Context(), envelope)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDContextKey{}, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
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
