// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"adminkit.org/internal/authz"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds runtime configuration for the API and the admin CLI.
type Config struct {
	AppEnv       string        `envconfig:"APP_ENV" default:"development"`
	HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr     string        `envconfig:"GRPC_ADDR" default:":9090"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	MaxBodyBytes int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"1048576"`
	CORSOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitRPS float64       `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateBurst    int           `envconfig:"RATE_LIMIT_BURST" default:"40"`
	// TrustedProxies may set X-Forwarded-For; empty trusts nobody.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Store string `envconfig:"APP_STORE" default:"memory"`
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"PRINCIPAL_CACHE_TTL" default:"5m"`

	JWTSecret       string        `envconfig:"JWT_SECRET"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER" default:"adminkit"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"60m"`

	RootRoles              []string `envconfig:"AUTHZ_ROOT_ROLES" default:"ROOT,ADMIN"`
	WildcardPermission     string   `envconfig:"AUTHZ_WILDCARD_PERMISSION" default:"*"`
	AllowWhenNoPermissions bool     `envconfig:"AUTHZ_ALLOW_WHEN_NO_PERMISSIONS" default:"true"`
	RootShortCircuit       bool     `envconfig:"AUTHZ_ROOT_SHORT_CIRCUIT" default:"false"`

	Version string `envconfig:"APP_VERSION" default:"dev"`
	Commit  string `envconfig:"APP_COMMIT" default:"none"`
}

// Load reads an optional .env file and then the process environment. Real
// environment variables win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.PGDSN) == "" {
			return errors.New("PG_DSN is required when APP_STORE=postgres")
		}
	default:
		return errors.New("APP_STORE must be memory or postgres")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET must be provided in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	return nil
}

// Policy builds the authorization policy from the AUTHZ_* settings.
func (c *Config) Policy() authz.Policy {
	p := authz.DefaultPolicy()
	roles := make([]string, 0, len(c.RootRoles))
	for _, r := range c.RootRoles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	p.RootRoles = roles
	p.WildcardPermission = strings.TrimSpace(c.WildcardPermission)
	p.AllowWhenNoPermissions = c.AllowWhenNoPermissions
	p.RootShortCircuit = c.RootShortCircuit
	return p
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
