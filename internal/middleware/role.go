package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/model"
)

// RequireRole rejects callers whose role is not one of roles with 403.
// It must run after JWTAuth.  Ownership of a venue is checked by the
// services, not here.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			if id.IsAnonymous() || !allowed[id.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "role not permitted"})
			}
			return next(c)
		}
	}
}
