package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/model"
)

func TestNewAccessTokenClaims(t *testing.T) {
	tok, err := NewAccessToken("s3cret", model.Identity{ID: 7, Role: model.RoleStaff, Name: "Gate A"}, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "7", claims["sub"])
	assert.Equal(t, "STAFF", claims["role"])
	assert.Equal(t, "Gate A", claims["name"])
}

func TestNewAccessTokenOmitsEmptyName(t *testing.T) {
	tok, err := NewAccessToken("s3cret", model.Identity{ID: 1, Role: model.RoleAttendee}, time.Minute)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	assert.NotContains(t, claims, "name")
}
