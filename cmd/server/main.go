package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	config "github.com/kiddoslabs/admission-core/configs"
	"github.com/kiddoslabs/admission-core/internal/application/services"
	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/db"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/email"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/health"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/redis"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/repositories"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/workers"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting admission core service...")

	// Initialize database (apply pool settings from config)
	database, err := db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	logger.Info("Connected to database successfully")

	// Initialize Redis client
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	logger.Info("Connected to Redis successfully")

	// Run migrations
	if err := database.Migrate("./migrations"); err != nil {
		logger.Warn("Failed to run migrations:", err)
	}

	// Quota table: built-in fixed windows plus configured content quotas
	policies := buildPolicyTable(&cfg.Quota)

	// Repositories
	rateWindowRepo := repositories.NewRateWindowRedisRepository(redisClient)
	redisCache := redis.NewRedisCache(redisClient, "admission")
	baseLedgerRepo := repositories.NewCreditLedgerRepository(database, logger)
	ledgerRepo := repositories.NewCachingLedgerRepository(baseLedgerRepo, redisCache, 3*time.Minute)

	// Email notifications
	emailConfig := &email.EmailConfig{
		SendGridAPIKey: cfg.Email.SendGridAPIKey,
		FromEmail:      cfg.Email.FromEmail,
		FromName:       cfg.Email.FromName,
		CompanyName:    cfg.Email.CompanyName,
	}
	emailService, err := email.NewEmailService(emailConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize email service:", err)
	}

	// Services
	rateLimiterService := services.NewRateLimiterService(rateWindowRepo, &services.RateLimiterConfig{
		KeyPrefix: cfg.Quota.KeyPrefix,
		Policies:  policies,
	}, logger)

	var adaptive ports.AdaptivePolicyProvider
	if cfg.Adaptive.Enabled {
		adaptive = services.NewAdaptiveLimiterService(rateWindowRepo, policies, services.AdaptiveConfig{
			PeakStartHour:    cfg.Adaptive.PeakStartHour,
			PeakEndHour:      cfg.Adaptive.PeakEndHour,
			Timezone:         cfg.Adaptive.Timezone,
			HighLatency:      cfg.Adaptive.HighLatency,
			ElevatedLatency:  cfg.Adaptive.ElevatedLatency,
			PaidPeakBoost:    cfg.Adaptive.PaidPeakBoost,
			FreePeakBoost:    cfg.Adaptive.FreePeakBoost,
			HighLoadFactor:   cfg.Adaptive.HighLoadFactor,
			MediumLoadFactor: cfg.Adaptive.MediumLoadFactor,
		}, logger)
		logger.Info("Adaptive quota scaling enabled")
	}

	creditGateService := services.NewCreditGateService(ledgerRepo, emailService, &services.CreditGateConfig{
		ImageSurcharge:      cfg.Pricing.ImageSurcharge,
		MinimumCost:         cfg.Pricing.MinimumCost,
		LowBalanceThreshold: cfg.Email.LowBalanceThreshold,
	}, logger)

	admissionService := services.NewAdmissionService(rateLimiterService, creditGateService, adaptive, logger)

	// Background sweep of stale rate windows
	cleanupWorker := workers.NewCleanupWorker(rateWindowRepo, cfg.Quota.KeyPrefix, cfg.Cleanup, logger)
	cleanupWorker.Start()
	defer cleanupWorker.Stop()

	hcSlice := []ports.HealthChecker{health.NewDBHealthChecker(database), health.NewRedisHealthChecker(redisClient)}

	// Create server configuration
	serverConfig := &httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
		Environment:  cfg.Server.Environment,
	}

	// Initialize HTTP server using ServerDeps for clearer wiring
	deps := httpserver.ServerDeps{
		AdmissionService:   admissionService,
		RateLimiterService: rateLimiterService,
		CreditGateService:  creditGateService,
		CreditLedger:       ledgerRepo,
		Policies:           policies,
		JWTSecret:          cfg.JWT.Secret,
		AdminKeyHash:       cfg.Admin.APIKeyHash,
		HealthCheckers:     hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

func buildPolicyTable(q *config.QuotaConfig) admission.PolicyTable {
	policies := admission.DefaultPolicyTable()
	policies.Set(admission.TierFree, admission.ActionContent, admission.QuotaPolicy{MaxRequests: q.FreeContentHour, Window: time.Hour})
	policies.Set(admission.TierFree, admission.ActionContentDaily, admission.QuotaPolicy{MaxRequests: q.FreeContentDay, Window: 24 * time.Hour})
	policies.Set(admission.TierBasic, admission.ActionContent, admission.QuotaPolicy{MaxRequests: q.BasicContentHour, Window: time.Hour})
	policies.Set(admission.TierBasic, admission.ActionContentDaily, admission.QuotaPolicy{MaxRequests: q.BasicContentDay, Window: 24 * time.Hour})
	policies.Set(admission.TierFamily, admission.ActionContent, admission.QuotaPolicy{MaxRequests: q.FamilyContentHour, Window: time.Hour})
	policies.Set(admission.TierFamily, admission.ActionContentDaily, admission.QuotaPolicy{MaxRequests: q.FamilyContentDay, Window: 24 * time.Hour})
	return policies
}
