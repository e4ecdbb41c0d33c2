package auth

import (
	"net/http"
	"strings"

	"github.com/example/title-ratings/internal/platform/api"
	"github.com/example/title-ratings/internal/platform/httpserver"
)

const RoleAdmin = "admin"

// RequireRole allows the request only when RequireUser already injected a
// Principal holding one of roles (case-insensitive).
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			for _, role := range roles {
				if p.Role != "" && strings.EqualFold(p.Role, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.Forbidden(w, "Insufficient role", httpserver.RequestIDFromContext(r.Context()))
		})
	}
}
