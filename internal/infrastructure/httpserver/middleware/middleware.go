package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	JWT       *JWTMiddleware
	Logging   *LoggingMiddleware
	RateLimit *RateLimitMiddleware
	AdminKey  *AdminKeyMiddleware
	Metrics   *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	rateLimiterService ports.RateLimiterService,
	policies admission.PolicyTable,
	logger *logrus.Logger,
	jwtSecret string,
	adminKeyHash string,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		JWT:       NewJWTMiddleware(jwtSecret, logger),
		Logging:   NewLoggingMiddleware(logger),
		RateLimit: NewRateLimitMiddleware(rateLimiterService, policies, logger),
		AdminKey:  NewAdminKeyMiddleware(adminKeyHash, logger),
		Metrics:   NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}
