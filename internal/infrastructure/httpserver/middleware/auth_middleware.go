package middleware

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/helpers"
)

// ActorClaims is the token payload identifying the calling account. Tokens
// are minted by the platform's auth service; this service only verifies.
type ActorClaims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

func NewJWTMiddleware(jwtSecret string, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{secret: []byte(jwtSecret), logger: logger}
}

// RequireJWT validates the bearer token and sets the account identity on the
// request context.
func (m *JWTMiddleware) RequireJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims := &ActorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return m.secret, nil
			})
			if err != nil || !token.Valid {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path}).WithError(err).Warn("JWT validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			accountID, err := uuid.Parse(claims.AccountID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid account id in token")
			}

			tier := admission.Tier(claims.Tier)
			if !tier.IsValid() {
				tier = admission.TierFree
			}

			helpers.SetAccountID(c, accountID)
			helpers.SetAccountTier(c, tier)
			helpers.SetAccountEmail(c, claims.Email)

			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{"account_id": accountID, "tier": tier}).Debug("jwt validated and account context set")
			}

			return next(c)
		}
	}
}
