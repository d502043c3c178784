package flows

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/goGuard/otp"
)

// MFA states mirrored by the root MFAState enum.
const (
	MFAStateNotEnrolled = iota
	MFAStatePendingVerification
	MFAStateEnabled
	MFAStateDisabled
)

type MFARecord struct {
	UserID          string
	TenantID        string
	Secret          string
	Enabled         bool
	EnrolledAt      time.Time
	DisabledAt      time.Time
	BackupCodes     []string
	LastUsedCounter int64
}

type MFAEnrollment struct {
	Secret string
	URI    string
}

type MFAEnrollmentResult struct {
	BackupCodes []string
	EnabledAt   time.Time
}

type MFAStatus struct {
	State                int
	EnrolledAt           time.Time
	BackupCodesRemaining int
}

type MFAMetrics struct {
	EnrollmentStarted     int
	Enabled               int
	Disabled              int
	VerifySuccess         int
	VerifyFailure         int
	ReplayAttempt         int
	AttemptsExceeded      int
	BackupCodeUsed        int
	BackupCodeFailed      int
	BackupCodeRegenerated int
	StoreUnavailable      int
}

type MFAEvents struct {
	EnrollmentStarted      string
	EnrollmentFailed       string
	Enabled                string
	Disabled               string
	VerifySuccess          string
	VerifyFailure          string
	AttemptsExceeded       string
	BackupCodeUsed         string
	BackupCodesRegenerated string
}

type MFAErrors struct {
	EngineNotReady   error
	UserRequired     error
	AlreadyEnabled   error
	NotEnabled       error
	InvalidToken     error
	InvalidEncoding  error
	WeakSecret       error
	AttemptsExceeded error
	StoreUnavailable error
}

type MFADeps struct {
	BackupCodeCount         int
	EnforceReplayProtection bool

	Now func() time.Time

	GetMFA                func(context.Context, string) (*MFARecord, error)
	SaveMFA               func(context.Context, MFARecord) error
	ReplaceBackupCodes    func(context.Context, string, []string) error
	ConsumeBackupCode     func(context.Context, string, string) (bool, error)
	UpdateLastUsedCounter func(context.Context, string, int64) (bool, error)
	DisableMFA            func(context.Context, string) error

	GenerateSecret      func() (string, error)
	ProvisionURI        func(string, string) string
	VerifyCode          func(string, string, time.Time) (bool, int64, error)
	CheckSecret         func(string) error
	GenerateBackupCodes func(int) ([]string, error)
	IsInvalidEncoding   func(error) bool

	CheckAttempts        func(context.Context, string) error
	RecordAttemptFailure func(context.Context, string) error
	ResetAttempts        func(context.Context, string) error
	IsAttemptsExceeded   func(error) bool

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)

	Metrics MFAMetrics
	Events  MFAEvents
	Errors  MFAErrors
}

func RunBeginEnrollment(ctx context.Context, userID, accountLabel string, deps MFADeps) (*MFAEnrollment, error) {
	normalizeMFADeps(&deps)

	if deps.GetMFA == nil || deps.GenerateSecret == nil || deps.ProvisionURI == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserRequired
	}

	rec, err := deps.GetMFA(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}
	if rec != nil && rec.Enabled {
		return nil, deps.Errors.AlreadyEnabled
	}

	secret, err := deps.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if accountLabel == "" {
		accountLabel = userID
	}

	deps.MetricInc(deps.Metrics.EnrollmentStarted)
	deps.EmitAudit(ctx, deps.Events.EnrollmentStarted, true, userID, "", "", nil, nil)
	return &MFAEnrollment{
		Secret: secret,
		URI:    deps.ProvisionURI(secret, accountLabel),
	}, nil
}

func RunConfirmEnrollment(ctx context.Context, userID, tenantID, secret, code string, deps MFADeps) (*MFAEnrollmentResult, error) {
	normalizeMFADeps(&deps)

	if deps.GetMFA == nil || deps.SaveMFA == nil || deps.VerifyCode == nil || deps.GenerateBackupCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserRequired
	}

	rec, err := deps.GetMFA(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}
	if rec != nil && rec.Enabled {
		return nil, deps.Errors.AlreadyEnabled
	}

	if err := deps.CheckSecret(secret); err != nil {
		failErr := deps.Errors.WeakSecret
		if deps.IsInvalidEncoding(err) {
			failErr = deps.Errors.InvalidEncoding
		}
		deps.EmitAudit(ctx, deps.Events.EnrollmentFailed, false, userID, tenantID, "", failErr, nil)
		return nil, failErr
	}

	now := deps.Now()
	ok, counter, err := deps.VerifyCode(code, secret, now)
	if err != nil {
		failErr := deps.Errors.InvalidToken
		if deps.IsInvalidEncoding(err) {
			failErr = deps.Errors.InvalidEncoding
		}
		deps.EmitAudit(ctx, deps.Events.EnrollmentFailed, false, userID, tenantID, "", failErr, nil)
		return nil, failErr
	}
	if !ok {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.EnrollmentFailed, false, userID, tenantID, "", deps.Errors.InvalidToken, nil)
		return nil, deps.Errors.InvalidToken
	}

	codes, err := deps.GenerateBackupCodes(deps.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	next := MFARecord{
		UserID:          userID,
		TenantID:        tenantID,
		Secret:          secret,
		Enabled:         true,
		EnrolledAt:      now,
		BackupCodes:     otp.HashBackupCodes(userID, codes),
		LastUsedCounter: counter,
	}
	if err := deps.SaveMFA(ctx, next); err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}

	deps.MetricInc(deps.Metrics.Enabled)
	deps.EmitAudit(ctx, deps.Events.Enabled, true, userID, tenantID, "", nil, func() map[string]string {
		return map[string]string{"backup_codes": strconv.Itoa(len(codes))}
	})
	return &MFAEnrollmentResult{BackupCodes: codes, EnabledAt: now}, nil
}

// RunVerifyMFA checks token as a backup code first and as a TOTP code second.
// Wrong tokens and users without MFA yield false with a nil error.
func RunVerifyMFA(ctx context.Context, userID, token string, deps MFADeps) (bool, error) {
	normalizeMFADeps(&deps)

	if userID == "" {
		return false, deps.Errors.UserRequired
	}
	rec, err := loadEnabledMFA(ctx, userID, deps)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return verifyMFAToken(ctx, rec, token, true, deps)
}

func RunDisableMFA(ctx context.Context, userID, token string, deps MFADeps) error {
	normalizeMFADeps(&deps)

	if deps.DisableMFA == nil {
		return deps.Errors.EngineNotReady
	}
	if userID == "" {
		return deps.Errors.UserRequired
	}
	rec, err := loadEnabledMFA(ctx, userID, deps)
	if err != nil {
		return err
	}
	if rec == nil {
		return deps.Errors.NotEnabled
	}

	ok, err := verifyMFAToken(ctx, rec, token, true, deps)
	if err != nil {
		return err
	}
	if !ok {
		return deps.Errors.InvalidToken
	}

	if err := deps.DisableMFA(ctx, userID); err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return deps.Errors.StoreUnavailable
	}

	deps.MetricInc(deps.Metrics.Disabled)
	deps.EmitAudit(ctx, deps.Events.Disabled, true, userID, rec.TenantID, "", nil, nil)
	return nil
}

// RunRegenerateBackupCodes replaces the whole backup set after a TOTP check.
// Backup codes are not accepted as proof here.
func RunRegenerateBackupCodes(ctx context.Context, userID, totpCode string, deps MFADeps) ([]string, error) {
	normalizeMFADeps(&deps)

	if deps.ReplaceBackupCodes == nil || deps.GenerateBackupCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserRequired
	}
	rec, err := loadEnabledMFA(ctx, userID, deps)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, deps.Errors.NotEnabled
	}

	ok, err := verifyMFAToken(ctx, rec, totpCode, false, deps)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, deps.Errors.InvalidToken
	}

	codes, err := deps.GenerateBackupCodes(deps.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := deps.ReplaceBackupCodes(ctx, userID, otp.HashBackupCodes(userID, codes)); err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}

	deps.MetricInc(deps.Metrics.BackupCodeRegenerated)
	deps.EmitAudit(ctx, deps.Events.BackupCodesRegenerated, true, userID, rec.TenantID, "", nil, nil)
	return codes, nil
}

func RunMFAStatus(ctx context.Context, userID string, deps MFADeps) (MFAStatus, error) {
	normalizeMFADeps(&deps)

	if deps.GetMFA == nil {
		return MFAStatus{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return MFAStatus{}, deps.Errors.UserRequired
	}
	rec, err := deps.GetMFA(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return MFAStatus{}, deps.Errors.StoreUnavailable
	}
	switch {
	case rec == nil:
		return MFAStatus{State: MFAStateNotEnrolled}, nil
	case rec.Enabled:
		return MFAStatus{
			State:                MFAStateEnabled,
			EnrolledAt:           rec.EnrolledAt,
			BackupCodesRemaining: len(rec.BackupCodes),
		}, nil
	default:
		return MFAStatus{State: MFAStateDisabled, EnrolledAt: rec.EnrolledAt}, nil
	}
}

func loadEnabledMFA(ctx context.Context, userID string, deps MFADeps) (*MFARecord, error) {
	if deps.GetMFA == nil || deps.VerifyCode == nil || deps.ConsumeBackupCode == nil || deps.UpdateLastUsedCounter == nil {
		return nil, deps.Errors.EngineNotReady
	}
	rec, err := deps.GetMFA(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}
	if rec == nil || !rec.Enabled || rec.Secret == "" {
		return nil, nil
	}
	if rec.UserID == "" {
		rec.UserID = userID
	}
	return rec, nil
}

func verifyMFAToken(ctx context.Context, rec *MFARecord, token string, allowBackup bool, deps MFADeps) (bool, error) {
	userID := rec.UserID
	if userID == "" {
		return false, deps.Errors.UserRequired
	}

	if err := deps.CheckAttempts(ctx, userID); err != nil {
		if deps.IsAttemptsExceeded(err) {
			deps.MetricInc(deps.Metrics.AttemptsExceeded)
			deps.EmitAudit(ctx, deps.Events.AttemptsExceeded, false, userID, rec.TenantID, "", deps.Errors.AttemptsExceeded, nil)
			return false, deps.Errors.AttemptsExceeded
		}
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return false, deps.Errors.StoreUnavailable
	}

	if allowBackup && otp.IsBackupCodeFormat(token) {
		if matched, _ := otp.ConsumeBackupCode(userID, rec.BackupCodes, token); matched {
			consumed, err := deps.ConsumeBackupCode(ctx, userID, otp.HashBackupCode(userID, token))
			if err != nil {
				deps.MetricInc(deps.Metrics.StoreUnavailable)
				return false, deps.Errors.StoreUnavailable
			}
			if !consumed {
				// lost a race with a concurrent use of the same code
				deps.MetricInc(deps.Metrics.BackupCodeFailed)
				return recordMFAFailure(ctx, rec, "backup_code_race", deps)
			}
			_ = deps.ResetAttempts(ctx, userID)
			deps.MetricInc(deps.Metrics.BackupCodeUsed)
			deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, userID, rec.TenantID, "", nil, func() map[string]string {
				return map[string]string{"remaining": strconv.Itoa(len(rec.BackupCodes) - 1)}
			})
			return true, nil
		}
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
	}

	ok, counter, err := deps.VerifyCode(token, rec.Secret, deps.Now())
	if err != nil {
		if deps.IsInvalidEncoding(err) {
			deps.EmitAudit(ctx, deps.Events.VerifyFailure, false, userID, rec.TenantID, "", deps.Errors.InvalidEncoding, nil)
			return false, deps.Errors.InvalidEncoding
		}
		return false, err
	}
	if !ok {
		return recordMFAFailure(ctx, rec, "totp_mismatch", deps)
	}

	if deps.EnforceReplayProtection {
		if counter <= rec.LastUsedCounter {
			deps.MetricInc(deps.Metrics.ReplayAttempt)
			return recordMFAFailure(ctx, rec, "totp_replay", deps)
		}
		advanced, err := deps.UpdateLastUsedCounter(ctx, userID, counter)
		if err != nil {
			deps.MetricInc(deps.Metrics.StoreUnavailable)
			return false, deps.Errors.StoreUnavailable
		}
		if !advanced {
			deps.MetricInc(deps.Metrics.ReplayAttempt)
			return recordMFAFailure(ctx, rec, "totp_replay", deps)
		}
	}

	_ = deps.ResetAttempts(ctx, userID)
	deps.MetricInc(deps.Metrics.VerifySuccess)
	deps.EmitAudit(ctx, deps.Events.VerifySuccess, true, userID, rec.TenantID, "", nil, nil)
	return true, nil
}

func recordMFAFailure(ctx context.Context, rec *MFARecord, reason string, deps MFADeps) (bool, error) {
	deps.MetricInc(deps.Metrics.VerifyFailure)
	throttled := false
	if err := deps.RecordAttemptFailure(ctx, rec.UserID); err != nil && deps.IsAttemptsExceeded(err) {
		throttled = true
	}
	deps.EmitAudit(ctx, deps.Events.VerifyFailure, false, rec.UserID, rec.TenantID, "", deps.Errors.InvalidToken, func() map[string]string {
		meta := map[string]string{"reason": reason}
		if throttled {
			meta["throttled"] = "true"
		}
		return meta
	})
	return false, nil
}

func normalizeMFADeps(deps *MFADeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BackupCodeCount <= 0 {
		deps.BackupCodeCount = otp.DefaultBackupCodeCount
	}
	if deps.GenerateBackupCodes == nil {
		deps.GenerateBackupCodes = otp.GenerateBackupCodes
	}
	if deps.IsInvalidEncoding == nil {
		deps.IsInvalidEncoding = func(error) bool { return false }
	}
	if deps.CheckSecret == nil {
		deps.CheckSecret = otp.CheckSecret
	}
	if deps.Errors.WeakSecret == nil {
		deps.Errors.WeakSecret = deps.Errors.InvalidEncoding
	}
	if deps.CheckAttempts == nil {
		deps.CheckAttempts = func(context.Context, string) error { return nil }
	}
	if deps.RecordAttemptFailure == nil {
		deps.RecordAttemptFailure = func(context.Context, string) error { return nil }
	}
	if deps.ResetAttempts == nil {
		deps.ResetAttempts = func(context.Context, string) error { return nil }
	}
	if deps.IsAttemptsExceeded == nil {
		deps.IsAttemptsExceeded = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
}
