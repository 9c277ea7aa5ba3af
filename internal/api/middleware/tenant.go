package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hugh/taskeasy/internal/tenant"
)

// Tenant resolves the target project and checks membership before any
// project-scoped handler runs. It must be mounted after Auth.
func Tenant(resolver *tenant.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := resolver.Resolve(r, GetUserID(r.Context()))
			if err != nil {
				status := tenant.Status(err)
				if status == http.StatusInternalServerError {
					logger.Error("tenant resolution failed", "error", err, "request_id", GetRequestID(r.Context()))
					writeError(w, status, "Internal server error")
					return
				}
				writeError(w, status, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(tenant.NewContext(r.Context(), scope)))
		})
	}
}

// RequireCreator restricts a route to the creator of the resolved project.
func RequireCreator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := tenant.FromContext(r.Context())
		if scope == nil {
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !scope.IsCreator() {
			writeError(w, http.StatusForbidden, tenant.ErrNotCreator.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
