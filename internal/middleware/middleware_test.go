package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/testutil"
)

var staff = model.Identity{ID: 9, Role: model.RoleStaff, Name: "Sam"}

// serve runs a single request through mw and returns the recorder and the
// identity the final handler observed.
func serve(t *testing.T, req *http.Request, mw ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, model.Identity) {
	t.Helper()
	e := echo.New()
	var seen model.Identity
	e.GET("/x", func(c echo.Context) error {
		seen = IdentityFrom(c)
		return c.String(http.StatusOK, "ok")
	}, mw...)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testutil.Token(t, staff))
	rec, id := serve(t, req, JWTAuth(testutil.JWTSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, staff, id)

	rec, _ = serve(t, httptest.NewRequest(http.MethodGet, "/x", nil), JWTAuth(testutil.JWTSecret))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testutil.Token(t, staff))
	rec, _ = serve(t, req, JWTAuth("other-secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalJWTFallsBackToAnonymous(t *testing.T) {
	rec, id := serve(t, httptest.NewRequest(http.MethodGet, "/x?token=garbage", nil), OptionalJWT(testutil.JWTSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, id.IsAnonymous())

	_, id = serve(t, httptest.NewRequest(http.MethodGet, "/x?token="+testutil.Token(t, staff), nil), OptionalJWT(testutil.JWTSecret))
	assert.Equal(t, staff, id)
}

func TestParseIdentityClaims(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseIdentity("k", sign(jwt.MapClaims{"sub": float64(42), "role": "volunteer", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, model.Identity{ID: 42, Role: model.RoleVolunteer}, id)

	_, err = ParseIdentity("k", sign(jwt.MapClaims{"role": "STAFF", "exp": exp}))
	assert.Error(t, err, "sub is required")

	_, err = ParseIdentity("k", sign(jwt.MapClaims{"sub": "7", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.Error(t, err, "expired tokens are rejected")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "7"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseIdentity("k", none)
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	attendee := model.Identity{ID: 3, Role: model.RoleAttendee}
	for _, tc := range []struct {
		who  model.Identity
		code int
	}{
		{staff, http.StatusOK},
		{attendee, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+testutil.Token(t, tc.who))
		rec, _ := serve(t, req, JWTAuth(testutil.JWTSecret), RequireRole(model.RoleOrganizer, model.RoleStaff))
		assert.Equal(t, tc.code, rec.Code, tc.who.Role)
	}

	rec, _ := serve(t, httptest.NewRequest(http.MethodGet, "/x", nil), RequireRole(model.RoleStaff))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRedisMiddlewareDisabledWithoutClient(t *testing.T) {
	rec, _ := serve(t, httptest.NewRequest(http.MethodGet, "/x", nil),
		NewTokenBucket(config.LoadRateLimitConfig(), nil),
		NewRedisCache(config.LoadCacheConfig(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"id":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"id":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	assert.False(t, ok)
}

func TestCacheKeyUsesConcretePath(t *testing.T) {
	a := cacheKey("p", httptest.NewRequest(http.MethodGet, "/v1/venues/1", nil))
	b := cacheKey("p", httptest.NewRequest(http.MethodGet, "/v1/venues/2", nil))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cacheKey("p", httptest.NewRequest(http.MethodGet, "/v1/venues/1", nil)))
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/tickets/scan", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/tickets/scan")
	c.Set(identityKey, staff)

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:user:9:route:POST /v1/tickets/scan", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))

	c.Set(identityKey, model.Anonymous)
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
}
