package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
	customMiddleware "github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

type ServerDeps struct {
	AdmissionService   ports.AdmissionService
	RateLimiterService ports.RateLimiterService
	CreditGateService  ports.CreditGateService
	CreditLedger       ports.CreditLedgerRepository
	Policies           admission.PolicyTable
	JWTSecret          string
	AdminKeyHash       string
	HealthCheckers     []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	admissionSvc   ports.AdmissionService
	limiterSvc     ports.RateLimiterService
	creditGate     ports.CreditGateService
	creditLedger   ports.CreditLedgerRepository
	policies       admission.PolicyTable
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		admissionSvc:   deps.AdmissionService,
		limiterSvc:     deps.RateLimiterService,
		creditGate:     deps.CreditGateService,
		creditLedger:   deps.CreditLedger,
		policies:       deps.Policies,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.RateLimiterService,
			deps.Policies,
			logger,
			deps.JWTSecret,
			deps.AdminKeyHash,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
