// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the signing secret used when JWT_SECRET is unset.
// Validate refuses it in production.
const DevJWTSecret = "empaccess-dev-secret-change-in-production"

// Config holds the configuration for the HTTP API and its backing store.
type Config struct {
	DBDriver string // sqlite (default) or postgres
	DBDSN    string // data source name; a file path for sqlite
	Port     string // HTTP listen port (default "8080")

	JWTSecret string
	JWTTTL    time.Duration // token lifetime (default 60m)
	JWTIssuer string

	LogLevel string // debug, info, warn, error (default "info")
	Env      string // development (default) or production

	RateLimitRPS   float64 // sustained requests per second per client; 0 disables
	RateLimitBurst int

	QueryTimeout time.Duration // deadline applied to each request's store I/O

	// DefaultGroup is assigned at login to accounts with no active membership.
	// Empty disables auto-provisioning.
	DefaultGroup string

	// AdminSecurityID guards the administrative routes.
	AdminSecurityID int

	// ManagerTitles overrides the default manager-equivalent job titles.
	ManagerTitles []string
}

// Load reads a .env file if one exists, then builds a Config from the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		DBDriver:     getEnv("EMPACCESS_DB_DRIVER", "sqlite"),
		DBDSN:        getEnv("EMPACCESS_DB_DSN", "empaccess.db"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", DevJWTSecret),
		JWTIssuer:    getEnv("JWT_ISSUER", "empaccess"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Env:          getEnv("ENV", "development"),
		DefaultGroup: os.Getenv("DEFAULT_GROUP"),
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = getDuration("QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.AdminSecurityID, err = getInt("ADMIN_SECURITY_ID", 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	} else {
		cfg.RateLimitRPS = 20
	}
	if v := os.Getenv("MANAGER_TITLES"); v != "" {
		for _, title := range strings.Split(v, ",") {
			if title = strings.TrimSpace(title); title != "" {
				cfg.ManagerTitles = append(cfg.ManagerTitles, title)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("EMPACCESS_DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("EMPACCESS_DB_DSN is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.JWTSecret == DevJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.AdminSecurityID <= 0 {
		return fmt.Errorf("ADMIN_SECURITY_ID must be positive")
	}
	return nil
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
