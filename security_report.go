package goGuard

import (
	"github.com/MrEthical07/goGuard/internal/security"
	"github.com/MrEthical07/goGuard/ratelimit"
)

// SecurityReport summarizes the effective security posture of a built engine.
// Warnings lists settings an operator should review before production.
type SecurityReport = security.Report

// SecretSealer is implemented by MFA stores that encrypt secrets at rest. The
// engine uses it only for [Engine.SecurityReport].
type SecretSealer interface {
	SealsSecrets() bool
}

// SecurityReport describes the securityreport operation and its observable behavior.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	sealed := false
	if s, ok := e.mfaStore.(SecretSealer); ok {
		sealed = s.SealsSecrets()
	}
	_, durable := e.limiter.(*ratelimit.RedisSlidingWindow)

	return security.BuildReport(security.ReportInput{
		TOTPAlgorithm:       e.config.TOTP.Algorithm,
		TOTPDigits:          e.config.TOTP.Digits,
		TOTPPeriod:          e.config.TOTP.Period,
		TOTPWindow:          e.config.TOTP.Window,
		ReplayProtection:    e.config.TOTP.EnforceReplayProtection,
		BackupCodeCount:     e.config.BackupCodes.Count,
		MFAEnabled:          e.mfaStore != nil,
		MFAThrottleWired:    e.mfaAttempts != nil,
		MFAMaxAttempts:      e.config.MFA.MaxAttempts,
		MFAAttemptWindow:    e.config.MFA.AttemptWindow,
		SecretsSealed:       sealed,
		RateLimiterDurable:  durable,
		KeyPepper:           e.config.ClientKeys.Pepper,
		DefaultKeyRateLimit: e.config.ClientKeys.DefaultRateLimit,
		StoreTimeout:        e.config.Store.Timeout,
		AuditEnabled:        e.config.Audit.Enabled,
		AuditDropIfFull:     e.config.Audit.DropIfFull,
		MetricsEnabled:      e.config.Metrics.Enabled,
	})
}
