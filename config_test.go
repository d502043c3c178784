package goGuard

import (
	"testing"
	"time"
)

func TestConfigValidateEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "totp sha1 valid",
			mutate: func(c *Config) {
				c.TOTP.Algorithm = "sha1"
			},
			wantValid: true,
		},
		{
			name: "totp md5 invalid",
			mutate: func(c *Config) {
				c.TOTP.Algorithm = "MD5"
			},
			wantValid: false,
		},
		{
			name: "totp digits too short",
			mutate: func(c *Config) {
				c.TOTP.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "totp eight digits valid",
			mutate: func(c *Config) {
				c.TOTP.Digits = 8
			},
			wantValid: true,
		},
		{
			name: "totp zero period invalid",
			mutate: func(c *Config) {
				c.TOTP.Period = 0
			},
			wantValid: false,
		},
		{
			name: "totp wide window invalid",
			mutate: func(c *Config) {
				c.TOTP.Window = 5
			},
			wantValid: false,
		},
		{
			name: "totp issuer with colon invalid",
			mutate: func(c *Config) {
				c.TOTP.Issuer = "Acme:Prod"
			},
			wantValid: false,
		},
		{
			name: "backup count zero invalid",
			mutate: func(c *Config) {
				c.BackupCodes.Count = 0
			},
			wantValid: false,
		},
		{
			name: "mfa attempts zero invalid",
			mutate: func(c *Config) {
				c.MFA.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "key default limit zero invalid",
			mutate: func(c *Config) {
				c.ClientKeys.DefaultRateLimit = 0
			},
			wantValid: false,
		},
		{
			name: "short pepper invalid",
			mutate: func(c *Config) {
				c.ClientKeys.Pepper = "short"
			},
			wantValid: false,
		},
		{
			name: "long pepper valid",
			mutate: func(c *Config) {
				c.ClientKeys.Pepper = "0123456789abcdef0123"
			},
			wantValid: true,
		},
		{
			name: "store timeout zero invalid",
			mutate: func(c *Config) {
				c.Store.Timeout = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "negative sweep invalid",
			mutate: func(c *Config) {
				c.RateLimit.SweepInterval = -time.Second
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TOTP.Digits != 6 || cfg.TOTP.Period != 30 || cfg.TOTP.Window != 1 || cfg.TOTP.Algorithm != "SHA256" {
		t.Fatalf("unexpected TOTP defaults %+v", cfg.TOTP)
	}
	if cfg.BackupCodes.Count != 10 {
		t.Fatalf("expected 10 backup codes, got %d", cfg.BackupCodes.Count)
	}
	if cfg.ClientKeys.DefaultRateLimit != 60 {
		t.Fatalf("expected default key limit 60, got %d", cfg.ClientKeys.DefaultRateLimit)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Fatalf("expected 2s store timeout, got %s", cfg.Store.Timeout)
	}
}
