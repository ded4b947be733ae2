package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/helpers"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/middleware"
)

const testSecret = "test-secret"

type limiterServiceMock struct {
	checkFn func(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision
}

func (m *limiterServiceMock) Check(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision {
	if m.checkFn != nil {
		return m.checkFn(ctx, identifier, action, tier)
	}
	return admission.Unlimited()
}
func (m *limiterServiceMock) CheckWithPolicy(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier, policy admission.QuotaPolicy) admission.Decision {
	return admission.Unlimited()
}
func (m *limiterServiceMock) Remaining(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) int {
	return admission.UnlimitedRemaining
}
func (m *limiterServiceMock) UsageSnapshot(ctx context.Context, identifier string, tier admission.Tier) map[admission.ActionType]admission.ActionUsage {
	return nil
}
func (m *limiterServiceMock) Reset(ctx context.Context, identifier string, action admission.ActionType) error {
	return nil
}

func mintToken(t *testing.T, accountID, tier string) string {
	t.Helper()
	claims := &middleware.ActorClaims{
		AccountID: accountID,
		Email:     "parent@example.com",
		Tier:      tier,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestJWTMiddleware_MissingTokenReturns401(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(testSecret, logrus.New())
	handler := m.RequireJWT()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := handler(c)
	require.Error(t, err)
	htErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, htErr.Code)
}

func TestJWTMiddleware_InvalidTokenReturns401(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(testSecret, logrus.New())
	handler := m.RequireJWT()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := handler(c)
	require.Error(t, err)
	htErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, htErr.Code)
}

func TestJWTMiddleware_ValidTokenSetsAccountContext(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(testSecret, logrus.New())
	accountID := "a6b7ce7e-18a1-4b8e-9d3a-111111111111"

	handler := m.RequireJWT()(func(c echo.Context) error {
		id, err := helpers.GetAccountIDFromContext(c)
		require.NoError(t, err)
		require.Equal(t, accountID, id.String())
		tier, err := helpers.GetAccountTierFromContext(c)
		require.NoError(t, err)
		require.Equal(t, admission.TierFamily, tier)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, accountID, "family"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, handler(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTMiddleware_UnknownTierFallsBackToFree(t *testing.T) {
	e := echo.New()
	m := middleware.NewJWTMiddleware(testSecret, logrus.New())

	handler := m.RequireJWT()(func(c echo.Context) error {
		tier, err := helpers.GetAccountTierFromContext(c)
		require.NoError(t, err)
		require.Equal(t, admission.TierFree, tier)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "a6b7ce7e-18a1-4b8e-9d3a-222222222222", "platinum"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, handler(c))
}

func TestRateLimitMiddleware_SetsHeadersAndRejects(t *testing.T) {
	e := echo.New()
	policies := admission.DefaultPolicyTable()
	limiter := &limiterServiceMock{
		checkFn: func(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision {
			return admission.Decision{Allowed: false, Remaining: 0, RetryAfterSeconds: 42}
		},
	}
	m := middleware.NewRateLimitMiddleware(limiter, policies, logrus.New())
	handler := m.PerIP(admission.ActionRegistration)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := handler(c)
	require.Error(t, err)
	htErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, htErr.Code)
	require.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "registration", rec.Header().Get("X-RateLimit-Type"))
	require.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_AllowsUnderQuota(t *testing.T) {
	e := echo.New()
	limiter := &limiterServiceMock{
		checkFn: func(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision {
			return admission.Decision{Allowed: true, Remaining: 7}
		},
	}
	m := middleware.NewRateLimitMiddleware(limiter, admission.DefaultPolicyTable(), logrus.New())
	handler := m.PerIP(admission.ActionRegistration)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, handler(c))
	require.Equal(t, "7", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestAdminKeyMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	e := echo.New()
	m := middleware.NewAdminKeyMiddleware(string(hash), logrus.New())
	handler := m.RequireAdminKey()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	// Missing key
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	err = handler(e.NewContext(req, rec))
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, err.(*echo.HTTPError).Code)

	// Wrong key
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	rec = httptest.NewRecorder()
	err = handler(e.NewContext(req, rec))
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, err.(*echo.HTTPError).Code)

	// Correct key
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Key", "sesame")
	rec = httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminKeyMiddleware_DisabledWithoutHash(t *testing.T) {
	e := echo.New()
	m := middleware.NewAdminKeyMiddleware("", logrus.New())
	handler := m.RequireAdminKey()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Key", "anything")
	rec := httptest.NewRecorder()
	err := handler(e.NewContext(req, rec))
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, err.(*echo.HTTPError).Code)
}
