package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/helpers"
	customMiddleware "github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/middleware"
)

type admitContentRequest struct {
	ContentType   string `json:"content_type"`
	IncludeImages bool   `json:"include_images"`
}

func parseContentType(raw string) (admission.ContentType, error) {
	switch ct := admission.ContentType(raw); ct {
	case admission.ContentStory, admission.ContentWorksheet, admission.ContentQuiz, admission.ContentExercise:
		return ct, nil
	}
	return "", echo.NewHTTPError(http.StatusBadRequest, "invalid content type")
}

// admitContent runs the full admission pipeline for a content generation
// request: hourly window, daily window, then credit reservation.
func (s *Server) admitContent(c echo.Context) error {
	accountID, err := helpers.GetAccountIDFromContext(c)
	if err != nil {
		return err
	}
	tier, err := helpers.GetAccountTierFromContext(c)
	if err != nil {
		return err
	}

	var req admitContentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	contentType, err := parseContentType(req.ContentType)
	if err != nil {
		return err
	}

	result := s.admissionSvc.AdmitContent(c.Request().Context(), accountID, tier, contentType, req.IncludeImages)
	admissionsTotal.WithLabelValues(string(tier), reasonLabel(result.Reason)).Inc()

	if result.Allowed {
		return c.JSON(http.StatusOK, result)
	}

	switch result.Reason {
	case admission.RejectRateLimited:
		customMiddleware.SetRateLimitHeaders(c, s.policies, tier, result.LimitedBy, result.Rate)
		return c.JSON(http.StatusTooManyRequests, result)
	case admission.RejectNoCredits:
		return c.JSON(http.StatusPaymentRequired, result)
	default:
		return c.JSON(http.StatusServiceUnavailable, result)
	}
}

func reasonLabel(r admission.RejectReason) string {
	if r == admission.RejectNone {
		return "allowed"
	}
	return string(r)
}

// quoteContent prices a generation without reserving anything.
func (s *Server) quoteContent(c echo.Context) error {
	tier, err := helpers.GetAccountTierFromContext(c)
	if err != nil {
		return err
	}

	contentType, err := parseContentType(c.QueryParam("content_type"))
	if err != nil {
		return err
	}
	includeImages := c.QueryParam("include_images") == "true"

	cost := s.creditGate.Quote(contentType, tier, includeImages)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"content_type":   contentType,
		"tier":           tier,
		"include_images": includeImages,
		"cost":           cost,
	})
}

type releaseRequest struct {
	AccountID string `json:"account_id"`
	Cost      int    `json:"cost"`
	Reason    string `json:"reason"`
}

// releaseReservation compensates an admitted request whose generation failed
// downstream. Invoked by the generation worker, hence admin-guarded.
func (s *Server) releaseReservation(c echo.Context) error {
	var req releaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account ID")
	}
	if req.Cost <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "cost must be positive")
	}

	if err := s.admissionSvc.ReleaseOnFailure(c.Request().Context(), accountID, req.Cost, req.Reason); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to release reservation")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "released"})
}
