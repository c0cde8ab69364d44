package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	SchemaPath  string
	RedisURL    string
	JWTSecret   string
	LogLevel    string
	LogFormat   string

	PublicApplicationsEnabled bool
	PublicLogApplications     bool
	RateLimitMax              int
	RateLimitWindowMinutes    int
	CaptchaRequired           bool
	RecaptchaSecretKey        string
	RecaptchaMinScore         float64
	RecaptchaVerifyURL        string
	PublicPortalURL           string

	SMTP SMTPConfig

	BackgroundWorkers   int
	BackgroundQueueSize int

	CatalogCacheTTLSeconds int
	CatalogCacheSize       int
}

// SMTPConfig holds outbound mail settings. An empty Host disables delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled reports whether enough is configured to send mail
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// GetRateLimitWindow returns the public intake window length
func (c *Config) GetRateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMinutes) * time.Minute
}

// GetCatalogCacheTTL returns how long public catalog reads are cached
func (c *Config) GetCatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSeconds) * time.Second
}

// Unified converts the flat env view into the structured configuration services consume
func (c *Config) Unified() *shared.UnifiedConfiguration {
	unified := shared.NewDefaultUnifiedConfiguration()

	unified.Intake = shared.IntakeConfig{
		Enabled:          c.PublicApplicationsEnabled,
		LogAttempts:      c.PublicLogApplications,
		RateLimitMax:     c.RateLimitMax,
		RateLimitWindow:  c.GetRateLimitWindow(),
		CaptchaRequired:  c.CaptchaRequired,
		CaptchaSecret:    c.RecaptchaSecretKey,
		CaptchaMinScore:  c.RecaptchaMinScore,
		CaptchaVerifyURL: c.RecaptchaVerifyURL,
		PortalURL:        c.PublicPortalURL,
	}
	unified.Background.Workers = c.BackgroundWorkers
	unified.Background.QueueSize = c.BackgroundQueueSize
	unified.Logging.Level = c.LogLevel
	unified.Logging.Format = c.LogFormat

	unified.ValidateAndApplyDefaults()
	return unified
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	portalURL := getEnv("PUBLIC_PORTAL_URL", "")
	if portalURL == "" {
		portalURL = getEnv("APP_BASE_URL", "http://localhost:5173")
	}

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SchemaPath:  getEnv("SCHEMA_PATH", "database/schema.sql"),
		RedisURL:    getEnv("REDIS_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),

		PublicApplicationsEnabled: getEnvBool("PUBLIC_APPLICATIONS_ENABLED", true),
		PublicLogApplications:     getEnvBool("PUBLIC_LOG_APPLICATIONS", true),
		RateLimitMax:              getEnvInt("PUBLIC_APPLICATIONS_RATE_LIMIT", 5),
		RateLimitWindowMinutes:    getEnvInt("PUBLIC_APPLICATIONS_RATE_WINDOW_MINUTES", 10),
		CaptchaRequired:           getEnvBool("PUBLIC_CAPTCHA_REQUIRED", true),
		RecaptchaSecretKey:        getEnv("RECAPTCHA_SECRET_KEY", ""),
		RecaptchaMinScore:         getEnvFloat("RECAPTCHA_MIN_SCORE", 0.5),
		RecaptchaVerifyURL:        getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		PublicPortalURL:           strings.TrimRight(portalURL, "/"),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},

		BackgroundWorkers:   getEnvInt("BACKGROUND_WORKERS", 4),
		BackgroundQueueSize: getEnvInt("BACKGROUND_QUEUE_SIZE", 256),

		CatalogCacheTTLSeconds: getEnvInt("CATALOG_CACHE_TTL_SECONDS", 60),
		CatalogCacheSize:       getEnvInt("CATALOG_CACHE_SIZE", 1000),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return value
}

// getEnvBool treats only "false" (any case) as false once the variable is set
func getEnvBool(key string, fallback bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	return !strings.EqualFold(strings.TrimSpace(raw), "false")
}
