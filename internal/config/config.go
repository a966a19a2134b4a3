package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	// ControlPlaneDatabaseURL points at the shared store that owns tenant
	// records. Tenant databases are resolved per request from encrypted
	// connection strings and are never configured here.
	ControlPlaneDatabaseURL string

	// Purpose-scoped master keys (base64, 32 bytes decoded). Deliberately not
	// validated at startup: a missing key is a configuration error raised on
	// first use so that unrelated endpoints keep working.
	ConnectionSecretKey   string
	AccessTokenSecretKey  string
	RefreshTokenSecretKey string

	JWTIssuer string

	VerificationTokenPepper string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          string

	AuthRateLimitPerMin int
	APIRateLimitPerMin  int
	RateLimitBackend    string
	RedisURL            string

	LoginMaxFailures int
	LoginLockWindow  time.Duration

	SessionCleanupInterval time.Duration

	DefaultSessionLimit int
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		ControlPlaneDatabaseURL: os.Getenv("CONTROL_PLANE_DATABASE_URL"),
		ConnectionSecretKey:     os.Getenv("SECRET_KEY_CONNECTION"),
		AccessTokenSecretKey:    os.Getenv("SECRET_KEY_ACCESS_TOKEN"),
		RefreshTokenSecretKey:   os.Getenv("SECRET_KEY_REFRESH_TOKEN"),
		JWTIssuer:               getEnv("JWT_ISSUER", "multitenant-commerce-kit"),
		VerificationTokenPepper: os.Getenv("VERIFICATION_TOKEN_PEPPER"),
		CookieDomain:            os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:            getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:          strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		AuthRateLimitPerMin:     getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:      getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitBackend:        strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "local")),
		RedisURL:                os.Getenv("REDIS_URL"),
		LoginMaxFailures:        getEnvInt("LOGIN_MAX_FAILURES", 5),
		DefaultSessionLimit:     getEnvInt("DEFAULT_SESSION_LIMIT", 5),
	}

	lockWindow, err := time.ParseDuration(getEnv("LOGIN_LOCK_WINDOW", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse LOGIN_LOCK_WINDOW: %w", err)
	}
	cfg.LoginLockWindow = lockWindow

	cleanupInterval, err := time.ParseDuration(getEnv("SESSION_CLEANUP_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("parse SESSION_CLEANUP_INTERVAL: %w", err)
	}
	cfg.SessionCleanupInterval = cleanupInterval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.ControlPlaneDatabaseURL == "" {
		errs = append(errs, "CONTROL_PLANE_DATABASE_URL is required")
	}
	if len(c.VerificationTokenPepper) < 16 {
		errs = append(errs, "VERIFICATION_TOKEN_PEPPER must be at least 16 chars")
	}
	if c.CookieSameSite != "lax" && c.CookieSameSite != "strict" && c.CookieSameSite != "none" {
		errs = append(errs, "COOKIE_SAMESITE must be lax, strict or none")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.RateLimitBackend != "local" && c.RateLimitBackend != "redis" {
		errs = append(errs, "RATE_LIMIT_BACKEND must be local or redis")
	}
	if c.RateLimitBackend == "redis" && c.RedisURL == "" {
		errs = append(errs, "REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
	}
	if c.LoginMaxFailures <= 0 {
		errs = append(errs, "LOGIN_MAX_FAILURES must be > 0")
	}
	if c.LoginLockWindow <= 0 {
		errs = append(errs, "LOGIN_LOCK_WINDOW must be > 0")
	}
	if c.DefaultSessionLimit <= 0 {
		errs = append(errs, "DEFAULT_SESSION_LIMIT must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
