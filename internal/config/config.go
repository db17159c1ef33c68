package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration
type Config struct {
	App                 AppConfig
	Database            DatabaseConfig
	Admin               AdminConfig
	Loans               LoanConfig
	NotificationService NotificationConfig
	Redis               RedisConfig
	Reminder            ReminderConfig
	Security            SecurityConfig
	Server              ServerConfig
}

// AppConfig holds process level settings
type AppConfig struct {
	Port         int    `envconfig:"PORT" default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`
	// Timezone used to render dates in exports and to parse them on import.
	Timezone string `envconfig:"TIMEZONE" default:"Local"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Name            string        `envconfig:"DB_NAME"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// AdminConfig holds the admin credential and token settings
type AdminConfig struct {
	Username string `envconfig:"ADMIN_USERNAME"`
	// PasswordHash is a bcrypt hash, see cmd/adminhash.
	PasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`
	JWTSecret    string        `envconfig:"ADMIN_JWT_SECRET"`
	JWTIssuer    string        `envconfig:"ADMIN_JWT_ISSUER" default:"device-loan-api"`
	TokenTTL     time.Duration `envconfig:"ADMIN_TOKEN_TTL" default:"8h"`
}

// LoanConfig holds ledger business rules
type LoanConfig struct {
	// AllowedEmailDomains restricts borrower emails when non-empty.
	AllowedEmailDomains []string `envconfig:"ALLOWED_EMAIL_DOMAINS"`
	// ImportEmailDomain is used to derive an email for imported borrowers that have none.
	ImportEmailDomain string        `envconfig:"IMPORT_EMAIL_DOMAIN" default:"imported.invalid"`
	LoanPeriod        time.Duration `envconfig:"LOAN_PERIOD" default:"168h"`
}

// NotificationConfig holds notification service configuration
type NotificationConfig struct {
	URL            string        `envconfig:"NOTIFIER_URL"`
	Timeout        time.Duration `envconfig:"NOTIFIER_TIMEOUT" default:"10s"`
	RetryAttempts  int           `envconfig:"NOTIFIER_RETRY_ATTEMPTS" default:"3"`
	RetryDelay     time.Duration `envconfig:"NOTIFIER_RETRY_DELAY" default:"1s"`
	MaxPayloadSize int64         `envconfig:"NOTIFIER_MAX_PAYLOAD_SIZE" default:"1048576"`
}

// RedisConfig holds the connection used by the reminder worker lock
type RedisConfig struct {
	URL          string        `envconfig:"REDIS_URL"`
	Address      string        `envconfig:"REDIS_ADDR"`
	Password     string        `envconfig:"REDIS_PASSWORD"`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ReminderConfig holds the overdue reminder worker schedule
type ReminderConfig struct {
	Interval time.Duration `envconfig:"REMINDER_INTERVAL" default:"24h"`
	LockKey  string        `envconfig:"REMINDER_LOCK_KEY" default:"device-loan:reminder:lock"`
	LockTTL  time.Duration `envconfig:"REMINDER_LOCK_TTL" default:"1h"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimitRPS    int           `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST" default:"200"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	EnableCORS      bool          `envconfig:"ENABLE_CORS" default:"true"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	TrustedProxies  []string      `envconfig:"TRUSTED_PROXIES"`
}

// ServerConfig holds server performance configuration
type ServerConfig struct {
	ReadTimeout    time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout    time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	MaxHeaderBytes int           `envconfig:"SERVER_MAX_HEADER_BYTES" default:"1048576"`
	MaxBodyBytes   int64         `envconfig:"SERVER_MAX_BODY_BYTES" default:"10485760"`
	EnableMetrics  bool          `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort    int           `envconfig:"METRICS_PORT" default:"9090"`
}

// LoadConfig reads an optional .env file, then the environment, and validates the result
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.normalize()

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Loans.AllowedEmailDomains = cleanList(c.Loans.AllowedEmailDomains, true)
	c.Security.AllowedOrigins = cleanList(c.Security.AllowedOrigins, false)
	c.Security.TrustedProxies = cleanList(c.Security.TrustedProxies, false)
	c.Loans.ImportEmailDomain = strings.ToLower(strings.TrimSpace(c.Loans.ImportEmailDomain))
}

func cleanList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(strings.TrimPrefix(v, "@"))
		}
		out = append(out, v)
	}
	return out
}

// validateConfig collects every problem so they can be fixed in one pass
func validateConfig(config *Config) error {
	var errors []string

	if config.Database.User == "" {
		errors = append(errors, "database user is required")
	}
	if config.Database.Password == "" {
		errors = append(errors, "database password is required")
	}
	if config.Database.Name == "" {
		errors = append(errors, "database name is required")
	}

	if config.Admin.Username == "" {
		errors = append(errors, "admin username is required")
	}
	if !strings.HasPrefix(config.Admin.PasswordHash, "$2") {
		errors = append(errors, "admin password hash must be a bcrypt hash")
	}
	if len(config.Admin.JWTSecret) < 16 {
		errors = append(errors, "admin JWT secret must be at least 16 characters")
	}
	if config.Admin.TokenTTL <= 0 {
		errors = append(errors, "admin token TTL must be positive")
	}

	if config.Loans.LoanPeriod <= 0 {
		errors = append(errors, "loan period must be positive")
	}
	if config.Loans.ImportEmailDomain == "" {
		errors = append(errors, "import email domain is required")
	}
	if _, err := time.LoadLocation(config.App.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("unknown timezone %q", config.App.Timezone))
	}

	if config.App.Port < 1 || config.App.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}
	if config.Database.Port < 1 || config.Database.Port > 65535 {
		errors = append(errors, "database port must be between 1 and 65535")
	}
	if config.Server.EnableMetrics && (config.Server.MetricsPort < 1 || config.Server.MetricsPort > 65535) {
		errors = append(errors, "metrics port must be between 1 and 65535")
	}
	if config.Security.RateLimitRPS < 1 || config.Security.RateLimitBurst < 1 {
		errors = append(errors, "rate limit RPS and burst must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// ValidateReminderWorker checks the settings only the reminder worker needs
func (c *Config) ValidateReminderWorker() error {
	var errors []string
	if c.NotificationService.URL == "" {
		errors = append(errors, "notification service URL is required")
	}
	if c.Redis.URL == "" && c.Redis.Address == "" {
		errors = append(errors, "redis URL or address is required")
	}
	if c.Reminder.Interval <= 0 {
		errors = append(errors, "reminder interval must be positive")
	}
	if c.Reminder.LockKey == "" {
		errors = append(errors, "reminder lock key is required")
	}
	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

// Location returns the configured display timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}
