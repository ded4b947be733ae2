package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/helpers"
)

type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiterService
	policies    admission.PolicyTable
	logger      *logrus.Logger
}

func NewRateLimitMiddleware(rateLimiter ports.RateLimiterService, policies admission.PolicyTable, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, policies: policies, logger: logger}
}

// PerAccount throttles authenticated traffic under the tier's api window.
// Must run after JWT middleware so the account identity is set.
func (r *RateLimitMiddleware) PerAccount() echo.MiddlewareFunc {
	return r.handler(admission.ActionAPI, func(c echo.Context) (string, admission.Tier, bool) {
		id, ok := helpers.GetAccountIDRaw(c)
		if !ok {
			return "", "", false
		}
		tier, ok := helpers.GetAccountTierRaw(c)
		if !ok {
			tier = admission.TierFree
		}
		return id.String(), tier, true
	})
}

// PerIP throttles unauthenticated traffic by client address, under the free
// tier's policy for the action.
func (r *RateLimitMiddleware) PerIP(action admission.ActionType) echo.MiddlewareFunc {
	return r.handler(action, func(c echo.Context) (string, admission.Tier, bool) {
		return c.RealIP(), admission.TierFree, true
	})
}

func (r *RateLimitMiddleware) handler(action admission.ActionType, identify func(echo.Context) (string, admission.Tier, bool)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier, tier, ok := identify(c)
			if !ok {
				// No identity resolved; the route's auth middleware decides.
				return next(c)
			}

			decision := r.rateLimiter.Check(c.Request().Context(), identifier, action, tier)
			SetRateLimitHeaders(c, r.policies, tier, action, decision)

			if !decision.Allowed {
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{"identifier": identifier, "action": action, "tier": tier, "retry_after": decision.RetryAfterSeconds}).Info("request rate limited")
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// SetRateLimitHeaders writes the standard quota headers for a window
// decision, including Retry-After on rejection.
func SetRateLimitHeaders(c echo.Context, policies admission.PolicyTable, tier admission.Tier, action admission.ActionType, decision admission.Decision) {
	h := c.Response().Header()
	if policy, ok := policies.Lookup(tier, action); ok {
		h.Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxRequests))
	}
	h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	h.Set("X-RateLimit-Type", string(action))
	if !decision.Allowed && decision.RetryAfterSeconds > 0 {
		h.Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
	}
}
