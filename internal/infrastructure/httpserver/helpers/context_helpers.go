package helpers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
)

func GetAccountIDFromContext(c echo.Context) (uuid.UUID, error) {
	id, ok := GetAccountIDRaw(c)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid account context")
	}
	return id, nil
}

func GetAccountTierFromContext(c echo.Context) (admission.Tier, error) {
	t, ok := GetAccountTierRaw(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid tier context")
	}
	return t, nil
}

func GetAccountEmailFromContext(c echo.Context) (string, error) {
	s, ok := GetAccountEmailRaw(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid account email context")
	}
	return s, nil
}

func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}
