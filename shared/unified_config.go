package shared

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all configuration parameters for the entire application
type UnifiedConfiguration struct {
	Service    ServiceConfig    `json:"service"`
	Database   DatabaseConfig   `json:"database"`
	Intake     IntakeConfig     `json:"intake"`
	Background BackgroundConfig `json:"background"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServiceConfig holds outbound HTTP configuration
type ServiceConfig struct {
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	MaxRetryAttempts   int           `json:"max_retries"`
	EnableMetrics      bool          `json:"enable_metrics"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// IntakeConfig holds the public application endpoint settings
type IntakeConfig struct {
	Enabled          bool          `json:"enabled"`
	LogAttempts      bool          `json:"log_attempts"`
	RateLimitMax     int           `json:"rate_limit_max"`
	RateLimitWindow  time.Duration `json:"rate_limit_window"`
	CaptchaRequired  bool          `json:"captcha_required"`
	CaptchaSecret    string        `json:"-"`
	CaptchaMinScore  float64       `json:"captcha_min_score"`
	CaptchaVerifyURL string        `json:"captcha_verify_url"`
	PortalURL        string        `json:"portal_url"`
}

// BackgroundConfig sizes the fire-and-forget worker pool
type BackgroundConfig struct {
	Workers     int           `json:"workers"`
	QueueSize   int           `json:"queue_size"`
	TaskTimeout time.Duration `json:"task_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

const (
	defaultCaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	defaultPortalURL        = "http://localhost:5173"
	defaultServiceName      = "ats-backend"
)

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Service: ServiceConfig{
			HTTPRequestTimeout: 10 * time.Second,
			MaxRetryAttempts:   2,
			EnableMetrics:      true,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Intake: IntakeConfig{
			Enabled:          true,
			LogAttempts:      true,
			RateLimitMax:     5,
			RateLimitWindow:  10 * time.Minute,
			CaptchaRequired:  true,
			CaptchaMinScore:  0.5,
			CaptchaVerifyURL: defaultCaptchaVerifyURL,
			PortalURL:        defaultPortalURL,
		},
		Background: BackgroundConfig{
			Workers:     4,
			QueueSize:   256,
			TaskTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: defaultServiceName,
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")

	if c.Service.HTTPRequestTimeout <= 0 {
		c.Service.HTTPRequestTimeout = 10 * time.Second
		logger.Debug("Applied default Service.HTTPRequestTimeout")
	}

	if c.Service.MaxRetryAttempts < 0 {
		c.Service.MaxRetryAttempts = 2
		logger.Debug("Applied default Service.MaxRetryAttempts")
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
		logger.Debug("Applied default Database.MaxOpenConns")
	}

	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
		logger.Debug("Applied default Database.MaxIdleConns")
	}

	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}

	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = 5 * time.Second
		logger.Debug("Applied default Database.PingTimeout")
	}

	if c.Intake.RateLimitMax <= 0 {
		c.Intake.RateLimitMax = 5
		logger.Debug("Applied default Intake.RateLimitMax")
	}

	if c.Intake.RateLimitWindow <= 0 {
		c.Intake.RateLimitWindow = 10 * time.Minute
		logger.Debug("Applied default Intake.RateLimitWindow")
	}

	if c.Intake.CaptchaMinScore < 0 || c.Intake.CaptchaMinScore > 1 {
		c.Intake.CaptchaMinScore = 0.5
		logger.Debug("Applied default Intake.CaptchaMinScore")
	}

	if c.Intake.CaptchaVerifyURL == "" {
		c.Intake.CaptchaVerifyURL = defaultCaptchaVerifyURL
		logger.Debug("Applied default Intake.CaptchaVerifyURL")
	}

	if c.Intake.PortalURL == "" {
		c.Intake.PortalURL = defaultPortalURL
		logger.Debug("Applied default Intake.PortalURL")
	}

	if c.Background.Workers <= 0 {
		c.Background.Workers = 4
		logger.Debug("Applied default Background.Workers")
	}

	if c.Background.QueueSize <= 0 {
		c.Background.QueueSize = 256
		logger.Debug("Applied default Background.QueueSize")
	}

	if c.Background.TaskTimeout <= 0 {
		c.Background.TaskTimeout = 15 * time.Second
		logger.Debug("Applied default Background.TaskTimeout")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
		logger.Debug("Applied default Logging.Level")
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "json"
		logger.Debug("Applied default Logging.Format")
	}

	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaultServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
