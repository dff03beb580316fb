package middleware

import (
	"fmt"
	"net/http"

	"github.com/anyllm/gateway/internal/auth"
)

// RequirePolicy returns middleware that enforces a route policy against
// the resolved principal. Must be applied after Auth middleware.
// Target-user resolution for master-key callers happens in handlers;
// this gate only checks the credential kind.
func RequirePolicy(policy auth.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.PrincipalFromContext(r.Context())
			if principal == nil {
				writePolicyError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			if !policy.Allows(principal.Kind) {
				writePolicyError(w, http.StatusForbidden, "FORBIDDEN",
					fmt.Sprintf("Credential kind not accepted on %s endpoints", policy.Name))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireCall is a convenience middleware for model call endpoints.
func RequireCall() func(http.Handler) http.Handler {
	return RequirePolicy(auth.PolicyCall)
}

// RequireSelf is a convenience middleware for self-service endpoints.
func RequireSelf() func(http.Handler) http.Handler {
	return RequirePolicy(auth.PolicySelf)
}

// RequireAdmin is a convenience middleware for administrative endpoints.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequirePolicy(auth.PolicyAdmin)
}

// RequireProfile is a convenience middleware for profile endpoints.
func RequireProfile() func(http.Handler) http.Handler {
	return RequirePolicy(auth.PolicyProfile)
}

// writePolicyError writes a policy-related error response.
func writePolicyError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"error":{"code":"%s","message":"%s"}}`, code, message)))
}
