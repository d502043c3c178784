package goGuard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every engine setting. Start from [DefaultConfig] and override
// fields; [Builder.Build] validates the result.
//
//	Docs: docs/config.md
type Config struct {
	TOTP        TOTPConfig       `yaml:"totp"`
	BackupCodes BackupCodeConfig `yaml:"backup_codes"`
	MFA         MFAConfig        `yaml:"mfa"`
	ClientKeys  ClientKeyConfig  `yaml:"client_keys"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Store       StoreConfig      `yaml:"store"`
	Audit       AuditConfig      `yaml:"audit"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

/*
====================================
MFA CONFIG
====================================
*/

// TOTPConfig controls code derivation. Period is in seconds.
type TOTPConfig struct {
	Issuer                  string `yaml:"issuer"`
	Digits                  int    `yaml:"digits"`
	Period                  int    `yaml:"period"`
	Window                  int    `yaml:"window"`
	Algorithm               string `yaml:"algorithm"`
	EnforceReplayProtection bool   `yaml:"enforce_replay_protection"`
}

// BackupCodeConfig sets the size of each issued backup-code set.
type BackupCodeConfig struct {
	Count int `yaml:"count"`
}

// MFAConfig throttles failed verifications per user. The throttle needs Redis;
// without it the engine runs unthrottled and SecurityReport says so.
type MFAConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
}

/*
====================================
CLIENT KEY CONFIG
====================================
*/

// ClientKeyConfig controls key issuance. When Pepper is set key hashes are
// HMAC-SHA256 under it instead of plain SHA-256; changing it invalidates every
// issued key.
type ClientKeyConfig struct {
	DefaultRateLimit int    `yaml:"default_rate_limit"`
	Pepper           string `yaml:"pepper"`
}

// RateLimitConfig configures the limiter the Builder creates when none is
// supplied: a Redis sliding window when Redis is wired, otherwise an in-process
// one swept every SweepInterval.
type RateLimitConfig struct {
	RedisPrefix   string        `yaml:"redis_prefix"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StoreConfig bounds every store call.
type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultConfig returns the production defaults: SHA256 TOTP with 6 digits,
// a 30 second period and a one-step window, 10 backup codes, 5 failed MFA
// attempts per 5 minutes, 60 key requests per minute and 2 second store calls.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "goGuard",
			Digits:                  6,
			Period:                  30,
			Window:                  1,
			Algorithm:               "SHA256",
			EnforceReplayProtection: true,
		},
		BackupCodes: BackupCodeConfig{
			Count: 10,
		},
		MFA: MFAConfig{
			MaxAttempts:   5,
			AttemptWindow: 5 * time.Minute,
		},
		ClientKeys: ClientKeyConfig{
			DefaultRateLimit: 60,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:   "gg:rl",
			SweepInterval: time.Minute,
		},
		Store: StoreConfig{
			Timeout: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Window < 0 || c.TOTP.Window > 3 {
		return errors.New("TOTP Window must be between 0 and 3")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return fmt.Errorf("TOTP Algorithm %q is not supported", c.TOTP.Algorithm)
	}

	// Backup codes
	if c.BackupCodes.Count < 1 || c.BackupCodes.Count > 50 {
		return errors.New("BackupCodes Count must be between 1 and 50")
	}

	// MFA throttle
	if c.MFA.MaxAttempts <= 0 {
		return errors.New("MFA MaxAttempts must be > 0")
	}
	if c.MFA.AttemptWindow <= 0 {
		return errors.New("MFA AttemptWindow must be > 0")
	}

	// Client keys
	if c.ClientKeys.DefaultRateLimit <= 0 {
		return errors.New("ClientKeys DefaultRateLimit must be > 0")
	}
	if c.ClientKeys.Pepper != "" && len(c.ClientKeys.Pepper) < 16 {
		return errors.New("ClientKeys Pepper must be at least 16 bytes when set")
	}

	// Rate limiting
	if strings.TrimSpace(c.RateLimit.RedisPrefix) == "" {
		return errors.New("RateLimit RedisPrefix must not be empty")
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
