package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"accountapi/internal/token"

	"github.com/rs/zerolog"
)

// Verifier resolves a bearer token to its owner.
type Verifier interface {
	Verify(ctx context.Context, value string) (token.Resolution, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// Authenticate attaches the caller's identity to the request when it
// presents a live token. It never rejects: a missing, unknown or expired
// token and a failing lookup all leave the request anonymous. Routes decide
// for themselves whether they need an identity.
func Authenticate(v Verifier, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := safeVerify(r.Context(), v, value)
			if err != nil {
				log.Warn().Err(err).
					Str("request_id", RequestIDFrom(r)).
					Msg("token verification failed; continuing anonymously")
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := res.UserID()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID)))
		})
	}
}

// safeVerify turns a panic inside v into an error.
func safeVerify(ctx context.Context, v Verifier, value string) (res token.Resolution, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = token.Unresolved, fmt.Errorf("token verification panicked: %v", p)
		}
	}()
	return v.Verify(ctx, value)
}
