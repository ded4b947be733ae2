package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyMiddleware guards administrative routes with a shared API key.
// Only the bcrypt hash of the key is configured; an empty hash disables the
// routes entirely.
type AdminKeyMiddleware struct {
	keyHash string
	logger  *logrus.Logger
}

func NewAdminKeyMiddleware(keyHash string, logger *logrus.Logger) *AdminKeyMiddleware {
	return &AdminKeyMiddleware{keyHash: keyHash, logger: logger}
}

func (m *AdminKeyMiddleware) RequireAdminKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.keyHash == "" {
				return echo.NewHTTPError(http.StatusNotFound, "not found")
			}

			key := c.Request().Header.Get("X-Admin-Key")
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing admin key")
			}

			if err := bcrypt.CompareHashAndPassword([]byte(m.keyHash), []byte(key)); err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path}).Warn("admin key rejected")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
			}

			return next(c)
		}
	}
}
