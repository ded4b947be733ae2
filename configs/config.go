package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Email    EmailConfig
	Redis    RedisConfig
	Log      LogConfig
	Quota    QuotaConfig
	Pricing  PricingConfig
	Adaptive AdaptiveConfig
	Admin    AdminConfig
	Cleanup  CleanupConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
	Environment  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type JWTConfig struct {
	Secret string
}

type EmailConfig struct {
	SendGridAPIKey      string
	FromEmail           string
	FromName            string
	CompanyName         string
	LowBalanceThreshold int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// QuotaConfig holds the environment-tunable content generation quotas.
// The login/api/registration windows are fixed in the built-in policy table.
type QuotaConfig struct {
	KeyPrefix         string
	FreeContentHour   int
	FreeContentDay    int
	BasicContentHour  int
	BasicContentDay   int
	FamilyContentHour int
	FamilyContentDay  int
}

// PricingConfig holds credit pricing knobs for content generation.
type PricingConfig struct {
	ImageSurcharge int
	MinimumCost    int
}

// AdaptiveConfig controls peak-hour and load-based quota scaling.
type AdaptiveConfig struct {
	Enabled          bool
	PeakStartHour    int
	PeakEndHour      int
	Timezone         string
	HighLatency      time.Duration
	ElevatedLatency  time.Duration
	PaidPeakBoost    float64
	FreePeakBoost    float64
	HighLoadFactor   float64
	MediumLoadFactor float64
}

// AdminConfig guards the administrative endpoints.
type AdminConfig struct {
	// Bcrypt hash of the admin API key; empty disables admin routes.
	APIKeyHash string
}

// CleanupConfig controls the background sweep of stale rate window entries.
type CleanupConfig struct {
	Interval  time.Duration
	MaxAge    time.Duration
	ScanBatch int
	// Keys swept per second, keeps the sweep from loading Redis.
	SweepRate float64
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "admission_db"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret: getEnvRequired("JWT_SECRET"),
		},
		Email: EmailConfig{
			SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
			FromEmail:           getEnv("FROM_EMAIL", "noreply@example.com"),
			FromName:            getEnv("FROM_NAME", "Kiddos"),
			CompanyName:         getEnv("COMPANY_NAME", "Kiddos"),
			LowBalanceThreshold: getIntEnv("LOW_BALANCE_THRESHOLD", 3),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Quota: QuotaConfig{
			KeyPrefix:         getEnv("RATE_LIMIT_KEY_PREFIX", "rate_limit"),
			FreeContentHour:   getIntEnv("FREE_TIER_CONTENT_PER_HOUR", 3),
			FreeContentDay:    getIntEnv("FREE_TIER_CONTENT_PER_DAY", 10),
			BasicContentHour:  getIntEnv("BASIC_TIER_CONTENT_PER_HOUR", 10),
			BasicContentDay:   getIntEnv("BASIC_TIER_CONTENT_PER_DAY", 50),
			FamilyContentHour: getIntEnv("FAMILY_TIER_CONTENT_PER_HOUR", 20),
			FamilyContentDay:  getIntEnv("FAMILY_TIER_CONTENT_PER_DAY", 150),
		},
		Pricing: PricingConfig{
			ImageSurcharge: getIntEnv("PRICING_IMAGE_SURCHARGE", 2),
			MinimumCost:    getIntEnv("PRICING_MINIMUM_COST", 1),
		},
		Adaptive: AdaptiveConfig{
			Enabled:          getBoolEnv("ADAPTIVE_LIMITS_ENABLED", false),
			PeakStartHour:    getIntEnv("ADAPTIVE_PEAK_START_HOUR", 18),
			PeakEndHour:      getIntEnv("ADAPTIVE_PEAK_END_HOUR", 23),
			Timezone:         getEnv("ADAPTIVE_TIMEZONE", "Asia/Dubai"),
			HighLatency:      getDurationEnv("ADAPTIVE_HIGH_LATENCY", 100*time.Millisecond),
			ElevatedLatency:  getDurationEnv("ADAPTIVE_ELEVATED_LATENCY", 50*time.Millisecond),
			PaidPeakBoost:    getFloatEnv("ADAPTIVE_PAID_PEAK_BOOST", 1.5),
			FreePeakBoost:    getFloatEnv("ADAPTIVE_FREE_PEAK_BOOST", 1.25),
			HighLoadFactor:   getFloatEnv("ADAPTIVE_HIGH_LOAD_FACTOR", 0.5),
			MediumLoadFactor: getFloatEnv("ADAPTIVE_MEDIUM_LOAD_FACTOR", 0.8),
		},
		Admin: AdminConfig{
			APIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),
		},
		Cleanup: CleanupConfig{
			Interval:  getDurationEnv("CLEANUP_INTERVAL", time.Hour),
			MaxAge:    getDurationEnv("CLEANUP_MAX_AGE", 24*time.Hour),
			ScanBatch: getIntEnv("CLEANUP_SCAN_BATCH", 100),
			SweepRate: getFloatEnv("CLEANUP_SWEEP_RATE", 50),
		},
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
