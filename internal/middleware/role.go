package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"school-library/internal/model"
)

// RequireRole returns a middleware that enforces a minimum role for the
// route group it wraps.  The check is hierarchical through
// model.Satisfies, so naming "librarian" admits librarians and admins;
// there are no per-route role lists to keep in sync.  It assumes Session
// has already loaded the principal; a missing principal is treated as
// forbidden.
func RequireRole(minRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := Principal(c)
			if !ok || !model.Satisfies(u.Role, minRole) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
