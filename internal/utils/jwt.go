// Package utils holds small helpers shared by the command line and tests.
package utils

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/owleye/internal/model"
)

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs an HS256 token for id.  The claims are sub (the
// user id as a decimal string), role, exp, iat and name when set, which is
// the shape middleware.ParseIdentity reads.
func NewAccessToken(secret string, id model.Identity, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(id.ID, 10),
		"role": string(id.Role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
