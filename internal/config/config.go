package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Registration number backends.
const (
	NumberBackendPostgres = "postgres"
	NumberBackendRedis    = "redis"
)

type Config struct {
	Port                      string        `mapstructure:"PORT"`
	Env                       string        `mapstructure:"ENV"`
	DatabaseURL               string        `mapstructure:"DATABASE_URL"`
	DBMaxConns                int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL                  string        `mapstructure:"REDIS_URL"`
	RedisPoolSize             int           `mapstructure:"REDIS_POOL_SIZE"`
	RedisDialTimeout          time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	AuthJWTSecret             string        `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer                string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience              string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins               []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS              float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst            int           `mapstructure:"RATE_LIMIT_BURST"`
	RegistrationNumberBackend string        `mapstructure:"REGISTRATION_NUMBER_BACKEND"`
	SaveLockTTL               time.Duration `mapstructure:"SAVE_LOCK_TTL"`
	ShutdownTimeout           time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "REDIS_POOL_SIZE", "REDIS_DIAL_TIMEOUT",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REGISTRATION_NUMBER_BACKEND", "SAVE_LOCK_TTL", "SHUTDOWN_TIMEOUT",
}

// Load reads the configuration from the environment, with an optional .env
// file underneath.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REGISTRATION_NUMBER_BACKEND", NumberBackendPostgres)
	v.SetDefault("SAVE_LOCK_TTL", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	cfg.RegistrationNumberBackend = strings.ToLower(strings.TrimSpace(cfg.RegistrationNumberBackend))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is required, and the redis number backend needs REDIS_URL.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set when ENV=%q; "+
			"refusing to start without authentication", c.Env)
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes, got %d", len(c.AuthJWTSecret))
	}

	switch c.RegistrationNumberBackend {
	case NumberBackendPostgres:
	case NumberBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when REGISTRATION_NUMBER_BACKEND is %q", NumberBackendRedis)
		}
	default:
		return fmt.Errorf("REGISTRATION_NUMBER_BACKEND must be %q or %q, got %q",
			NumberBackendPostgres, NumberBackendRedis, c.RegistrationNumberBackend)
	}

	if c.SaveLockTTL <= 0 {
		return fmt.Errorf("SAVE_LOCK_TTL must be positive, got %s", c.SaveLockTTL)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
