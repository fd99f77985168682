package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/owleye/internal/model"
)

const identityKey = "identity"

var errBadClaims = errors.New("invalid claims")

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the caller's model.Identity in the request context.  Requests
// without a valid token are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c)
			if raw == "" {
				return unauthorized(c, "missing bearer token")
			}
			id, err := ParseIdentity(secret, raw)
			if err != nil {
				return unauthorized(c, "invalid token")
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// OptionalJWT resolves an identity when one is presented, either as a
// Bearer header or as the `token` query parameter browsers use for
// websocket upgrades.  Missing or invalid tokens yield model.Anonymous.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := model.Anonymous
			raw := bearer(c)
			if raw == "" {
				raw = c.QueryParam("token")
			}
			if raw != "" {
				if parsed, err := ParseIdentity(secret, raw); err == nil {
					id = parsed
				}
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// ParseIdentity verifies an HS256 token and reads its sub, role and name
// claims.  sub may be a JSON number or a decimal string.
func ParseIdentity(secret, raw string) (model.Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil {
		return model.Anonymous, err
	}
	if !tok.Valid {
		return model.Anonymous, jwt.ErrTokenUnverifiable
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Anonymous, errBadClaims
	}

	var id uint64
	switch v := claims["sub"].(type) {
	case float64:
		if v > 0 {
			id = uint64(v)
		}
	case string:
		id, _ = strconv.ParseUint(v, 10, 64)
	}
	if id == 0 {
		return model.Anonymous, errBadClaims
	}
	role, _ := claims["role"].(string)
	name, _ := claims["name"].(string)
	return model.Identity{ID: id, Role: model.Role(strings.ToUpper(role)), Name: name}, nil
}

// IdentityFrom returns the identity stored by JWTAuth or OptionalJWT, or
// model.Anonymous when neither ran.
func IdentityFrom(c echo.Context) model.Identity {
	if id, ok := c.Get(identityKey).(model.Identity); ok {
		return id
	}
	return model.Anonymous
}

func bearer(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": msg})
}
