package httpserver

import (
	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
)

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")

	// Registration is unauthenticated, throttled by client address.
	api.POST("/accounts", s.createAccount, s.middleware.RateLimit.PerIP(admission.ActionRegistration))

	protected := api.Group("")
	protected.Use(s.middleware.JWT.RequireJWT())
	protected.Use(s.middleware.RateLimit.PerAccount())

	protected.POST("/admission/content", s.admitContent)
	protected.GET("/admission/quote", s.quoteContent)
	protected.GET("/limits", s.getLimits)
	protected.GET("/credits/balance", s.getCreditBalance)

	admin := api.Group("/admin")
	admin.Use(s.middleware.AdminKey.RequireAdminKey())

	admin.POST("/limits/reset", s.resetLimits)
	admin.POST("/credits/purchase", s.recordPurchase)
	admin.POST("/credits/bonus", s.awardBonus)
	admin.POST("/admission/release", s.releaseReservation)
}
