package goGuard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func enrollUser(t *testing.T, te *testEngine, userID string) (string, []string) {
	t.Helper()

	enrollment, err := te.BeginEnrollment(context.Background(), userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	result, err := te.ConfirmEnrollment(context.Background(), userID, "t1", enrollment.Secret, te.currentCode(t, enrollment.Secret, 0))
	if err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	return enrollment.Secret, result.BackupCodes
}

func eventsOfType(events []AuditEvent, eventType string) []AuditEvent {
	var out []AuditEvent
	for _, ev := range events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestBeginEnrollmentReturnsSecretAndURIWithoutPersisting(t *testing.T) {
	te := newTestEngine(t)

	enrollment, err := te.BeginEnrollment(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	if enrollment.State != MFAPendingVerification {
		t.Fatalf("expected pending verification, got %s", enrollment.State)
	}
	if len(enrollment.Secret) != 32 {
		t.Fatalf("expected 32 base32 chars for a 20 byte secret, got %d", len(enrollment.Secret))
	}
	if !strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/goGuard:alice%40example.com?secret="+enrollment.Secret) {
		t.Fatalf("unexpected provisioning URI %q", enrollment.ProvisioningURI)
	}
	if _, ok := te.mfa.record("u1"); ok {
		t.Fatal("expected nothing persisted before confirmation")
	}

	status, err := te.MFAStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MFAStatus failed: %v", err)
	}
	if status.State != MFANotEnrolled {
		t.Fatalf("expected not enrolled, got %s", status.State)
	}
}

func TestConfirmEnrollmentRejectsWrongCode(t *testing.T) {
	te := newTestEngine(t)

	enrollment, err := te.BeginEnrollment(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	wrong := te.currentCode(t, enrollment.Secret, 3)

	_, err = te.ConfirmEnrollment(context.Background(), "u1", "t1", enrollment.Secret, wrong)
	if !errors.Is(err, ErrInvalidVerificationToken) {
		t.Fatalf("expected ErrInvalidVerificationToken, got %v", err)
	}
	if _, ok := te.mfa.record("u1"); ok {
		t.Fatal("expected nothing persisted after a failed confirmation")
	}

	events := te.drainAudit()
	if got := eventsOfType(events, auditEventMFAEnrollmentFailed); len(got) != 1 || got[0].Error != string(AuditErrInvalidToken) {
		t.Fatalf("expected one enrollment failure event, got %+v", got)
	}
}

func TestConfirmEnrollmentRejectsUndecodableSecret(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.ConfirmEnrollment(context.Background(), "u1", "t1", "not base32!", "123456")
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestConfirmEnrollmentRejectsShortSecret(t *testing.T) {
	te := newTestEngine(t)

	const short = "AAAAAAAA" // 5 bytes
	_, err := te.ConfirmEnrollment(context.Background(), "u1", "t1", short, te.currentCode(t, short, 0))
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
	if _, ok := te.mfa.record("u1"); ok {
		t.Fatal("expected nothing persisted for a short secret")
	}

	status, err := te.MFAStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MFAStatus failed: %v", err)
	}
	if status.State != MFANotEnrolled {
		t.Fatalf("expected not enrolled, got %s", status.State)
	}

	events := te.drainAudit()
	if got := eventsOfType(events, auditEventMFAEnrollmentFailed); len(got) != 1 || got[0].Error != string(AuditErrWeakSecret) {
		t.Fatalf("expected one weak_secret enrollment failure, got %+v", got)
	}
}

func TestMFAScenarioBackupCodeIsSingleUse(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, codes := enrollUser(t, te, "u1")
	if len(codes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(codes))
	}

	rec, _ := te.mfa.record("u1")
	if !rec.Enabled || len(rec.BackupCodes) != 10 {
		t.Fatalf("unexpected stored record %+v", rec)
	}
	for _, digest := range rec.BackupCodes {
		for _, code := range codes {
			if strings.Contains(digest, code) {
				t.Fatal("plaintext backup code persisted")
			}
		}
	}

	ok, err := te.VerifyLogin(ctx, "u1", codes[0])
	if err != nil || !ok {
		t.Fatalf("expected backup code login to succeed, got ok=%v err=%v", ok, err)
	}

	status, err := te.MFAStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("MFAStatus failed: %v", err)
	}
	if status.State != MFAEnabled || status.BackupCodesRemaining != 9 {
		t.Fatalf("expected enabled with 9 codes, got %+v", status)
	}

	ok, err = te.VerifyLogin(ctx, "u1", codes[0])
	if err != nil || ok {
		t.Fatalf("expected reused backup code to be denied, got ok=%v err=%v", ok, err)
	}

	ok, err = te.VerifyLogin(ctx, "u1", strings.ToLower(codes[1]))
	if err != nil || !ok {
		t.Fatalf("expected lowercase backup code to succeed, got ok=%v err=%v", ok, err)
	}

	events := te.drainAudit()
	used := eventsOfType(events, auditEventBackupCodeUsed)
	if len(used) != 2 || used[0].Metadata["remaining"] != "9" {
		t.Fatalf("unexpected backup_code_used events %+v", used)
	}
	for _, ev := range events {
		for _, code := range codes {
			if strings.Contains(ev.Error, code) {
				t.Fatal("backup code leaked in audit error")
			}
			for _, v := range ev.Metadata {
				if strings.Contains(v, code) {
					t.Fatal("backup code leaked in audit metadata")
				}
			}
		}
	}
}

func TestBeginEnrollmentRefusedWhenEnabled(t *testing.T) {
	te := newTestEngine(t)
	enrollUser(t, te, "u1")

	if _, err := te.BeginEnrollment(context.Background(), "u1", ""); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("expected ErrMFAAlreadyEnabled, got %v", err)
	}
}

func TestVerifyLoginRejectsReplayedTOTPCode(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	secret, _ := enrollUser(t, te, "u1")

	// the confirmation code is already spent
	ok, err := te.VerifyLogin(ctx, "u1", te.currentCode(t, secret, 0))
	if err != nil || ok {
		t.Fatalf("expected confirmation code replay to fail, got ok=%v err=%v", ok, err)
	}

	te.clock.Advance(30 * time.Second)
	code := te.currentCode(t, secret, 0)
	ok, err = te.VerifyLogin(ctx, "u1", code)
	if err != nil || !ok {
		t.Fatalf("expected fresh code to verify, got ok=%v err=%v", ok, err)
	}
	ok, err = te.VerifyLogin(ctx, "u1", code)
	if err != nil || ok {
		t.Fatalf("expected replay to fail, got ok=%v err=%v", ok, err)
	}

	if got := te.Metrics().Value(MetricMFAReplayAttempt); got != 2 {
		t.Fatalf("expected 2 replay attempts, got %d", got)
	}
}

func TestVerifyLoginWindowToleratesOneStep(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	secret, _ := enrollUser(t, te, "u1")

	ok, err := te.VerifyLogin(ctx, "u1", te.currentCode(t, secret, 2))
	if err != nil || ok {
		t.Fatalf("expected code two steps ahead to fail, got ok=%v err=%v", ok, err)
	}
	ok, err = te.VerifyLogin(ctx, "u1", te.currentCode(t, secret, 1))
	if err != nil || !ok {
		t.Fatalf("expected code one step ahead to verify, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyLoginWithoutReplayProtectionAcceptsSameCode(t *testing.T) {
	te := newTestEngineWith(t, func(c *Config) {
		c.TOTP.EnforceReplayProtection = false
	})
	ctx := context.Background()
	secret, _ := enrollUser(t, te, "u1")

	code := te.currentCode(t, secret, 0)
	for i := 0; i < 2; i++ {
		ok, err := te.VerifyLogin(ctx, "u1", code)
		if err != nil || !ok {
			t.Fatalf("attempt %d: expected success, got ok=%v err=%v", i, ok, err)
		}
	}
}

func TestVerifyLoginThrottlesRepeatedFailures(t *testing.T) {
	te := newTestEngineWith(t, func(c *Config) {
		c.MFA.MaxAttempts = 3
		c.MFA.AttemptWindow = time.Minute
	})
	ctx := context.Background()
	secret, _ := enrollUser(t, te, "u1")

	for i := 0; i < 3; i++ {
		ok, err := te.VerifyLogin(ctx, "u1", "12345")
		if err != nil || ok {
			t.Fatalf("attempt %d: expected plain failure, got ok=%v err=%v", i, ok, err)
		}
	}

	te.clock.Advance(30 * time.Second)
	good := te.currentCode(t, secret, 0)
	ok, err := te.VerifyLogin(ctx, "u1", good)
	if !errors.Is(err, ErrMFAAttemptsExceeded) || ok {
		t.Fatalf("expected ErrMFAAttemptsExceeded, got ok=%v err=%v", ok, err)
	}

	te.redis.FastForward(time.Minute + time.Second)
	ok, err = te.VerifyLogin(ctx, "u1", good)
	if err != nil || !ok {
		t.Fatalf("expected success after the window, got ok=%v err=%v", ok, err)
	}

	events := te.drainAudit()
	if got := eventsOfType(events, auditEventMFAAttemptsExceeded); len(got) != 1 {
		t.Fatalf("expected one attempts-exceeded event, got %d", len(got))
	}
	failures := eventsOfType(events, auditEventMFAFailure)
	if len(failures) != 3 || failures[2].Metadata["throttled"] != "true" {
		t.Fatalf("expected third failure flagged throttled, got %+v", failures)
	}
}

func TestVerifyLoginConcurrentBackupCodeUsedOnce(t *testing.T) {
	te := newTestEngineWith(t, func(c *Config) {
		c.MFA.MaxAttempts = 50
	})
	_, codes := enrollUser(t, te, "u1")

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := te.VerifyLogin(context.Background(), "u1", codes[0])
			if err == nil && ok {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("expected exactly one success, got %d", got)
	}
	rec, _ := te.mfa.record("u1")
	if len(rec.BackupCodes) != 9 {
		t.Fatalf("expected 9 stored digests, got %d", len(rec.BackupCodes))
	}
}

func TestVerifyLoginNotEnrolledIsFalse(t *testing.T) {
	te := newTestEngine(t)

	ok, err := te.VerifyLogin(context.Background(), "nobody", "123456")
	if err != nil || ok {
		t.Fatalf("expected false without error, got ok=%v err=%v", ok, err)
	}
	if _, err := te.VerifyLogin(context.Background(), "", "123456"); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestVerifyLoginStoreTimeoutFailsClosed(t *testing.T) {
	te := newTestEngineWith(t, func(c *Config) {
		c.Store.Timeout = 20 * time.Millisecond
	})
	enrollUser(t, te, "u1")
	te.mfa.setHang(true)

	start := time.Now()
	ok, err := te.VerifyLogin(context.Background(), "u1", "123456")
	if !errors.Is(err, ErrStoreUnavailable) || ok {
		t.Fatalf("expected ErrStoreUnavailable, got ok=%v err=%v", ok, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("store timeout not applied, call took %s", elapsed)
	}
	if got := te.Metrics().Value(MetricStoreUnavailable); got != 1 {
		t.Fatalf("expected one store-unavailable metric, got %d", got)
	}
}

func TestDisableRequiresValidToken(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	if err := te.Disable(ctx, "u1", "123456"); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}

	secret, _ := enrollUser(t, te, "u1")
	if err := te.Disable(ctx, "u1", "12345"); !errors.Is(err, ErrInvalidVerificationToken) {
		t.Fatalf("expected ErrInvalidVerificationToken, got %v", err)
	}

	te.clock.Advance(30 * time.Second)
	if err := te.Disable(ctx, "u1", te.currentCode(t, secret, 0)); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	status, err := te.MFAStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("MFAStatus failed: %v", err)
	}
	if status.State != MFADisabled || status.BackupCodesRemaining != 0 {
		t.Fatalf("expected disabled without codes, got %+v", status)
	}

	te.clock.Advance(30 * time.Second)
	ok, err := te.VerifyLogin(ctx, "u1", te.currentCode(t, secret, 0))
	if err != nil || ok {
		t.Fatalf("expected verification to fail after disable, got ok=%v err=%v", ok, err)
	}

	if _, err := te.BeginEnrollment(ctx, "u1", ""); err != nil {
		t.Fatalf("expected re-enrollment after disable, got %v", err)
	}
}

func TestRegenerateBackupCodesReplacesSet(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	secret, oldCodes := enrollUser(t, te, "u1")

	if _, err := te.RegenerateBackupCodes(ctx, "u1", oldCodes[0]); !errors.Is(err, ErrInvalidVerificationToken) {
		t.Fatalf("expected backup code to be refused as proof, got %v", err)
	}

	te.clock.Advance(30 * time.Second)
	newCodes, err := te.RegenerateBackupCodes(ctx, "u1", te.currentCode(t, secret, 0))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(newCodes))
	}

	ok, err := te.VerifyLogin(ctx, "u1", oldCodes[1])
	if err != nil || ok {
		t.Fatalf("expected old code rejected, got ok=%v err=%v", ok, err)
	}
	ok, err = te.VerifyLogin(ctx, "u1", newCodes[0])
	if err != nil || !ok {
		t.Fatalf("expected new code accepted, got ok=%v err=%v", ok, err)
	}
	if got := te.Metrics().Value(MetricBackupCodeRegenerated); got != 1 {
		t.Fatalf("expected regeneration metric 1, got %d", got)
	}
}

func TestMFAOperationsOnUnbuiltEngine(t *testing.T) {
	var e Engine
	if _, err := e.VerifyLogin(context.Background(), "u1", "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	var nilEngine *Engine
	if _, err := nilEngine.MFAStatus(context.Background(), "u1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady on nil engine, got %v", err)
	}
}
