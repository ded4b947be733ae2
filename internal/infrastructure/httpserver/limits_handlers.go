package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/helpers"
)

// getLimits reports the caller's usage across every window configured for
// their tier.
func (s *Server) getLimits(c echo.Context) error {
	accountID, err := helpers.GetAccountIDFromContext(c)
	if err != nil {
		return err
	}
	tier, err := helpers.GetAccountTierFromContext(c)
	if err != nil {
		return err
	}

	usage := s.limiterSvc.UsageSnapshot(c.Request().Context(), accountID.String(), tier)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tier":  tier,
		"usage": usage,
	})
}

type resetLimitsRequest struct {
	Identifier string `json:"identifier"`
	Action     string `json:"action"`
}

// resetLimits clears an identifier's windows: one action, or all when the
// action is omitted. Support tooling.
func (s *Server) resetLimits(c echo.Context) error {
	var req resetLimitsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Identifier == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier is required")
	}

	if err := s.limiterSvc.Reset(c.Request().Context(), req.Identifier, admission.ActionType(req.Action)); err != nil {
		s.logger.WithError(err).Error("failed to reset rate limits")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reset rate limits")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}
