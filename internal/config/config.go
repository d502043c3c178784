// Package config loads the goguard service configuration: YAML file first,
// then GOGUARD_* environment overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/logging"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/secretbox"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Session resolver kinds.
const (
	SessionJWT   = "jwt"
	SessionRedis = "redis"
)

// Config is the full service configuration.
type Config struct {
	App      AppConfig                `yaml:"app"`
	Log      LogConfig                `yaml:"log"`
	Server   ServerConfig             `yaml:"server"`
	Storage  StorageConfig            `yaml:"storage"`
	Redis    RedisConfig              `yaml:"redis"`
	Postgres PostgresConfig           `yaml:"postgres"`
	Secrets  SecretsConfig            `yaml:"secrets"`
	Session  SessionConfig            `yaml:"session"`
	Engine   goGuard.Config           `yaml:"engine"`
	Gateway  middleware.GatewayConfig `yaml:"gateway"`
}

type AppConfig struct {
	Env  string `yaml:"env"`
	Name string `yaml:"name"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects where MFA records and client keys live.
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// SecretsConfig holds the MFA sealing key (32 bytes, base64 or hex).
// AllowPlaintext stores secrets unsealed and is refused in production.
type SecretsConfig struct {
	MFAKey         string `yaml:"mfa_key"`
	AllowPlaintext bool   `yaml:"allow_plaintext"`
}

type SessionConfig struct {
	Kind       string        `yaml:"kind"`
	CookieName string        `yaml:"cookie_name"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	JWT        JWTConfig     `yaml:"jwt"`
}

// JWTConfig configures the bearer-token resolver. Key files may hold PEM or
// raw key bytes.
type JWTConfig struct {
	Method         string        `yaml:"method"`
	Secret         string        `yaml:"secret"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	Leeway         time.Duration `yaml:"leeway"`
}

// Default returns a development configuration: in-memory storage and an
// HS256 session resolver with no secret (which Validate rejects until one
// is supplied).
func Default() Config {
	engine := goGuard.DefaultConfig()
	engine.Audit.Enabled = true
	engine.Metrics.Enabled = true
	engine.Metrics.EnableLatencyHistograms = true

	return Config{
		App: AppConfig{Env: "development", Name: "goguard"},
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:              ":8080",
			MetricsAddr:       ":9090",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "gg"},
		Postgres: PostgresConfig{
			MaxConns: 10,
		},
		Session: SessionConfig{
			Kind:       SessionJWT,
			CookieName: "goguard_session",
			CacheTTL:   30 * time.Second,
			JWT: JWTConfig{
				Method: "hs256",
				Issuer: "goguard",
				Leeway: 30 * time.Second,
			},
		},
		Engine:  engine,
		Gateway: middleware.DefaultGatewayConfig(),
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnvOverrides(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("GOGUARD_ENV", &c.App.Env)
	str("GOGUARD_LOG_LEVEL", &c.Log.Level)
	str("GOGUARD_ADDR", &c.Server.Addr)
	str("GOGUARD_METRICS_ADDR", &c.Server.MetricsAddr)
	str("GOGUARD_STORAGE", &c.Storage.Driver)
	str("GOGUARD_REDIS_ADDR", &c.Redis.Addr)
	str("GOGUARD_REDIS_PASSWORD", &c.Redis.Password)
	str("GOGUARD_POSTGRES_DSN", &c.Postgres.DSN)
	str("GOGUARD_MFA_KEY", &c.Secrets.MFAKey)
	str("GOGUARD_KEY_PEPPER", &c.Engine.ClientKeys.Pepper)
	str("GOGUARD_TOTP_ISSUER", &c.Engine.TOTP.Issuer)
	str("GOGUARD_SESSION_KIND", &c.Session.Kind)
	str("GOGUARD_JWT_SECRET", &c.Session.JWT.Secret)
	str("GOGUARD_JWT_ISSUER", &c.Session.JWT.Issuer)

	if v, ok := lookup("GOGUARD_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("GOGUARD_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v, ok := lookup("GOGUARD_TRUST_FORWARDED_FOR"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("GOGUARD_TRUST_FORWARDED_FOR: %w", err)
		}
		c.Gateway.TrustForwardedFor = b
	}
	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			add("postgres.dsn is required for the postgres driver")
		}
	default:
		add("storage.driver %q is not one of memory, redis, postgres", c.Storage.Driver)
	}

	if c.Secrets.MFAKey != "" {
		if _, err := secretbox.ParseKey(c.Secrets.MFAKey); err != nil {
			add("secrets.mfa_key: %v", err)
		}
	} else if c.Storage.Driver != DriverMemory && !c.Secrets.AllowPlaintext {
		add("secrets.mfa_key is required unless secrets.allow_plaintext is set")
	}
	if c.Secrets.AllowPlaintext && logging.IsProduction(c.App.Env) {
		add("secrets.allow_plaintext is not permitted in production")
	}

	switch c.Session.Kind {
	case SessionJWT:
		switch c.Session.JWT.Method {
		case "hs256":
			if len(c.Session.JWT.Secret) < 32 {
				add("session.jwt.secret must be at least 32 bytes")
			}
		case "ed25519":
			if c.Session.JWT.PublicKeyFile == "" {
				add("session.jwt.public_key_file is required for ed25519")
			}
		default:
			add("session.jwt.method %q is not one of hs256, ed25519", c.Session.JWT.Method)
		}
	case SessionRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for redis sessions")
		}
	default:
		add("session.kind %q is not one of jwt, redis", c.Session.Kind)
	}
	if c.Session.CacheTTL < 0 {
		add("session.cache_ttl must not be negative")
	}
	if c.Session.CacheTTL >= c.Gateway.FreshnessWindow && c.Gateway.FreshnessWindow > 0 {
		add("session.cache_ttl must be shorter than gateway.freshness_window")
	}

	if err := c.Engine.Validate(); err != nil {
		add("engine: %v", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		add("gateway: %v", err)
	}

	return errors.Join(errs...)
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Storage.Driver == DriverRedis || c.Session.Kind == SessionRedis
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Redis.Password = mask(c.Redis.Password)
	c.Postgres.DSN = mask(c.Postgres.DSN)
	c.Secrets.MFAKey = mask(c.Secrets.MFAKey)
	c.Session.JWT.Secret = mask(c.Session.JWT.Secret)
	c.Engine.ClientKeys.Pepper = mask(c.Engine.ClientKeys.Pepper)
	return c
}
