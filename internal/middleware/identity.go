package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// callerKey identifies the caller for rate limiting: the user id when
// authenticated, otherwise "anon".
func callerKey(c echo.Context) string {
	id := IdentityFrom(c)
	if id.IsAnonymous() {
		return "anon"
	}
	return strconv.FormatUint(id.ID, 10)
}
