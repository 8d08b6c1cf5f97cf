package server

import (
	"context"
	"net/http"
	"strings"

	"songbridge/internal/security"
)

type contextKey string

const sessionClaimsKey contextKey = "session-claims"

// requireSession rejects requests without a valid bearer session token and
// stores the verified claims on the request context.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.Validate(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionClaimsKey, claims)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// sessionClaims returns the claims stored by requireSession, or nil when the
// handler was reached without the middleware.
func sessionClaims(ctx context.Context) *security.SessionClaims {
	claims, _ := ctx.Value(sessionClaimsKey).(*security.SessionClaims)
	return claims
}
