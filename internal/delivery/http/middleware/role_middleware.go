package middleware

import (
	"net/http"

	"or-scheduler/internal/domain/entity"
	"or-scheduler/pkg/response"
)

// RequireRole creates a middleware that checks if the user has any of the required roles
// Role is read from context (set by AuthMiddleware from JWT claims)
func RequireRole(allowed ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRoleFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "Role information not found")
				return
			}

			for _, a := range allowed {
				if role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "You don't have permission to access this resource")
		})
	}
}

// RequireAdmin is a convenience middleware for admin-only endpoints
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(entity.RoleAdmin)(next)
}

// RequireSurgeon is a convenience middleware for surgeon-only endpoints
func RequireSurgeon(next http.Handler) http.Handler {
	return RequireRole(entity.RoleSurgeon)(next)
}

// RequireClinical admits the case team (staff, surgeons) and admins to the
// clinical workflow endpoints
func RequireClinical(next http.Handler) http.Handler {
	return RequireRole(entity.RoleStaff, entity.RoleSurgeon, entity.RoleAdmin)(next)
}
