package security

import (
	"strings"
	"time"
)

type TOTPReport struct {
	Algorithm        string
	Digits           int
	Period           int
	Window           int
	ReplayProtection bool
}

type Report struct {
	TOTP                TOTPReport
	BackupCodeCount     int
	MFAThrottleActive   bool
	MFAMaxAttempts      int
	MFAAttemptWindow    time.Duration
	SecretsSealed       bool
	RateLimiterDurable  bool
	KeyHashPeppered     bool
	DefaultKeyRateLimit int
	StoreTimeout        time.Duration
	AuditEnabled        bool
	AuditDropIfFull     bool
	MetricsEnabled      bool
	Warnings            []string
}

type ReportInput struct {
	TOTPAlgorithm       string
	TOTPDigits          int
	TOTPPeriod          int
	TOTPWindow          int
	ReplayProtection    bool
	BackupCodeCount     int
	MFAEnabled          bool
	MFAThrottleWired    bool
	MFAMaxAttempts      int
	MFAAttemptWindow    time.Duration
	SecretsSealed       bool
	RateLimiterDurable  bool
	KeyPepper           string
	DefaultKeyRateLimit int
	StoreTimeout        time.Duration
	AuditEnabled        bool
	AuditDropIfFull     bool
	MetricsEnabled      bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		TOTP: TOTPReport{
			Algorithm:        strings.ToUpper(input.TOTPAlgorithm),
			Digits:           input.TOTPDigits,
			Period:           input.TOTPPeriod,
			Window:           input.TOTPWindow,
			ReplayProtection: input.ReplayProtection,
		},
		BackupCodeCount:     input.BackupCodeCount,
		MFAThrottleActive:   input.MFAEnabled && input.MFAThrottleWired,
		MFAMaxAttempts:      input.MFAMaxAttempts,
		MFAAttemptWindow:    input.MFAAttemptWindow,
		SecretsSealed:       input.SecretsSealed,
		RateLimiterDurable:  input.RateLimiterDurable,
		KeyHashPeppered:     input.KeyPepper != "",
		DefaultKeyRateLimit: input.DefaultKeyRateLimit,
		StoreTimeout:        input.StoreTimeout,
		AuditEnabled:        input.AuditEnabled,
		AuditDropIfFull:     input.AuditEnabled && input.AuditDropIfFull,
		MetricsEnabled:      input.MetricsEnabled,
	}

	if r.TOTP.Algorithm == "SHA1" {
		r.Warnings = append(r.Warnings, "totp uses SHA1; SHA256 is the default")
	}
	if r.TOTP.Window > 1 {
		r.Warnings = append(r.Warnings, "totp window wider than one step")
	}
	if !r.TOTP.ReplayProtection {
		r.Warnings = append(r.Warnings, "totp replay protection disabled")
	}
	if input.MFAEnabled && !input.MFAThrottleWired {
		r.Warnings = append(r.Warnings, "mfa attempt throttle inactive: no redis client")
	}
	if input.MFAEnabled && !input.SecretsSealed {
		r.Warnings = append(r.Warnings, "mfa secrets are not sealed at rest")
	}
	if !r.RateLimiterDurable {
		r.Warnings = append(r.Warnings, "rate limiter state is in-process and lost on restart")
	}
	if !r.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit disabled")
	} else if r.AuditDropIfFull {
		r.Warnings = append(r.Warnings, "audit drops events when the buffer is full")
	}
	return r
}
