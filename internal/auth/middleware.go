package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
)

type ctxKey int

const (
	subjectKey ctxKey = iota
	bearerKey
)

// Identifier resolves a bearer token to a subject.
type Identifier interface {
	Identify(ctx context.Context, tok string, role token.Role) (string, bool)
}

// SubjectFromContext returns the subject attached by Authenticate.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok && v != ""
}

// BearerFromContext returns the raw token that authenticated the request.
func BearerFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(bearerKey).(string)
	return v, ok && v != ""
}

// BearerToken extracts the token from an "Authorization: Bearer x" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// Authenticate attaches the subject of a valid, unrevoked bearer token of
// the given role. Requests without one continue anonymously.
func Authenticate(id Identifier, role token.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := BearerToken(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}
			subject, ok := id.Identify(r.Context(), tok, role)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey, subject)
			ctx = context.WithValue(ctx, bearerKey, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSubject rejects anonymous requests with 401.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SubjectFromContext(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
