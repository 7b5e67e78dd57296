package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/openstats/data-api/internal/platform/httpx"
)

const internalTokenHeader = "X-Internal-Token"

// InternalAuthMiddleware guards the internal route group with a shared token.
// The token arrives either in X-Internal-Token or as a bearer credential.
// An empty configured token rejects every request rather than opening the
// group up.
func InternalAuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "internal access is not configured", http.StatusUnauthorized))
				return
			}
			presented := internalToken(r)
			if presented == "" || subtle.ConstantTimeCompare(expected, []byte(presented)) != 1 {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "invalid internal credentials", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func internalToken(r *http.Request) string {
	if value := strings.TrimSpace(r.Header.Get(internalTokenHeader)); value != "" {
		return value
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
