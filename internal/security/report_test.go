package security

import (
	"strings"
	"testing"
	"time"
)

func hardenedInput() ReportInput {
	return ReportInput{
		TOTPAlgorithm:       "sha256",
		TOTPDigits:          6,
		TOTPPeriod:          30,
		TOTPWindow:          1,
		ReplayProtection:    true,
		BackupCodeCount:     10,
		MFAEnabled:          true,
		MFAThrottleWired:    true,
		MFAMaxAttempts:      5,
		MFAAttemptWindow:    5 * time.Minute,
		SecretsSealed:       true,
		RateLimiterDurable:  true,
		KeyPepper:           "0123456789abcdef",
		DefaultKeyRateLimit: 60,
		StoreTimeout:        2 * time.Second,
		AuditEnabled:        true,
	}
}

func TestBuildReportHardenedHasNoWarnings(t *testing.T) {
	r := BuildReport(hardenedInput())
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
	if r.TOTP.Algorithm != "SHA256" || !r.MFAThrottleActive || !r.KeyHashPeppered {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestBuildReportFlagsWeakSettings(t *testing.T) {
	in := hardenedInput()
	in.TOTPAlgorithm = "SHA1"
	in.ReplayProtection = false
	in.MFAThrottleWired = false
	in.SecretsSealed = false
	in.RateLimiterDurable = false
	in.AuditEnabled = false

	r := BuildReport(in)
	if r.MFAThrottleActive {
		t.Fatal("throttle must be inactive without redis")
	}
	joined := strings.Join(r.Warnings, "\n")
	for _, want := range []string{"SHA1", "replay", "throttle", "sealed", "lost on restart", "audit disabled"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected warning containing %q in %q", want, joined)
		}
	}
}

func TestBuildReportSkipsMFAWarningsWithoutMFAStore(t *testing.T) {
	in := hardenedInput()
	in.MFAEnabled = false
	in.MFAThrottleWired = false
	in.SecretsSealed = false

	r := BuildReport(in)
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}
