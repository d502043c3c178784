package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/otp"
)

// BeginEnrollment describes the beginenrollment operation and its observable behavior.
//
// BeginEnrollment generates a fresh TOTP secret and its otpauth:// provisioning
// URI. Nothing is persisted: the caller keeps the secret until
// [Engine.ConfirmEnrollment]. It fails with ErrMFAAlreadyEnabled when MFA is
// already on for userID. An empty accountLabel falls back to userID.
//
//	Flow: MFA enrollment
//	Docs: docs/mfa.md
func (e *Engine) BeginEnrollment(ctx context.Context, userID, accountLabel string) (*Enrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out, err := e.flows.BeginEnrollment(ctx, userID, accountLabel)
	if err != nil {
		return nil, err
	}
	return &Enrollment{
		UserID:          userID,
		Secret:          out.Secret,
		ProvisioningURI: out.URI,
		State:           MFAPendingVerification,
	}, nil
}

// ConfirmEnrollment describes the confirmenrollment operation and its observable behavior.
//
// ConfirmEnrollment checks code against secret, enables MFA and issues a new
// backup-code set. Secrets shorter than otp.SecretBytes fail with
// ErrWeakSecret and nothing is stored. The plaintext codes are returned once; only their digests
// are stored. The code used here cannot be replayed at login.
//
//	Flow: MFA enrollment
//	Docs: docs/mfa.md
func (e *Engine) ConfirmEnrollment(ctx context.Context, userID, tenantID, secret, code string) (*EnrollmentResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out, err := e.flows.ConfirmEnrollment(ctx, userID, tenantID, secret, code)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResult{
		BackupCodes: out.BackupCodes,
		EnabledAt:   out.EnabledAt,
	}, nil
}

// VerifyLogin describes the verifylogin operation and its observable behavior.
//
// VerifyLogin accepts either a current TOTP code or an unused backup code. A
// wrong token, or a user without MFA, yields (false, nil). Repeated failures
// trip the per-user throttle, after which ErrMFAAttemptsExceeded is returned
// until the window passes. A backup code is consumed on success.
//
//	Flow: MFA login
//	Docs: docs/mfa.md
func (e *Engine) VerifyLogin(ctx context.Context, userID, token string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flows.VerifyMFA(ctx, userID, token)
}

// Disable turns MFA off after checking token. It fails with ErrMFANotEnabled
// when there is nothing to disable and ErrInvalidVerificationToken on a wrong
// token.
func (e *Engine) Disable(ctx context.Context, userID, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.flows.DisableMFA(ctx, userID, token)
}

// RegenerateBackupCodes replaces the user's entire backup-code set. Only a TOTP
// code is accepted as proof.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, token string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.flows.RegenerateBackupCodes(ctx, userID, token)
}

// MFAStatus reports where userID is in the MFA lifecycle.
func (e *Engine) MFAStatus(ctx context.Context, userID string) (MFAStatusInfo, error) {
	if err := e.ready(); err != nil {
		return MFAStatusInfo{}, err
	}
	st, err := e.flows.MFAStatus(ctx, userID)
	if err != nil {
		return MFAStatusInfo{}, err
	}
	return MFAStatusInfo{
		State:                mfaStateFromFlow(st.State),
		EnrolledAt:           st.EnrolledAt,
		BackupCodesRemaining: st.BackupCodesRemaining,
	}, nil
}

func mfaStateFromFlow(state int) MFAState {
	switch state {
	case flows.MFAStatePendingVerification:
		return MFAPendingVerification
	case flows.MFAStateEnabled:
		return MFAEnabled
	case flows.MFAStateDisabled:
		return MFADisabled
	default:
		return MFANotEnrolled
	}
}

func mfaRecordToFlow(rec *MFARecord) *flows.MFARecord {
	if rec == nil {
		return nil
	}
	return &flows.MFARecord{
		UserID:          rec.UserID,
		TenantID:        rec.TenantID,
		Secret:          rec.Secret,
		Enabled:         rec.Enabled,
		EnrolledAt:      rec.EnrolledAt,
		DisabledAt:      rec.DisabledAt,
		BackupCodes:     append([]string(nil), rec.BackupCodes...),
		LastUsedCounter: rec.LastUsedCounter,
	}
}

func mfaRecordFromFlow(rec flows.MFARecord) MFARecord {
	return MFARecord{
		UserID:          rec.UserID,
		TenantID:        rec.TenantID,
		Secret:          rec.Secret,
		Enabled:         rec.Enabled,
		EnrolledAt:      rec.EnrolledAt,
		DisabledAt:      rec.DisabledAt,
		BackupCodes:     rec.BackupCodes,
		LastUsedCounter: rec.LastUsedCounter,
	}
}

func (e *Engine) mfaFlowDeps() flows.MFADeps {
	deps := flows.MFADeps{
		BackupCodeCount:         e.config.BackupCodes.Count,
		EnforceReplayProtection: e.config.TOTP.EnforceReplayProtection,
		Now:                     e.now,
		GenerateSecret:          e.totp.GenerateSecret,
		ProvisionURI:            e.totp.ProvisioningURI,
		VerifyCode:              e.totp.VerifyCode,
		CheckSecret:             otp.CheckSecret,
		GenerateBackupCodes:     otp.GenerateBackupCodes,
		IsInvalidEncoding: func(err error) bool {
			return errors.Is(err, otp.ErrInvalidEncoding) || errors.Is(err, otp.ErrEmptySecret)
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Metrics: flows.MFAMetrics{
			EnrollmentStarted:     int(MetricMFAEnrollmentStarted),
			Enabled:               int(MetricMFAEnabled),
			Disabled:              int(MetricMFADisabled),
			VerifySuccess:         int(MetricMFAVerifySuccess),
			VerifyFailure:         int(MetricMFAVerifyFailure),
			ReplayAttempt:         int(MetricMFAReplayAttempt),
			AttemptsExceeded:      int(MetricMFAAttemptsExceeded),
			BackupCodeUsed:        int(MetricBackupCodeUsed),
			BackupCodeFailed:      int(MetricBackupCodeFailed),
			BackupCodeRegenerated: int(MetricBackupCodeRegenerated),
			StoreUnavailable:      int(MetricStoreUnavailable),
		},
		Events: flows.MFAEvents{
			EnrollmentStarted:      auditEventMFAEnrollmentStarted,
			EnrollmentFailed:       auditEventMFAEnrollmentFailed,
			Enabled:                auditEventMFAEnabled,
			Disabled:               auditEventMFADisabled,
			VerifySuccess:          auditEventMFASuccess,
			VerifyFailure:          auditEventMFAFailure,
			AttemptsExceeded:       auditEventMFAAttemptsExceeded,
			BackupCodeUsed:         auditEventBackupCodeUsed,
			BackupCodesRegenerated: auditEventBackupCodesRegenerated,
		},
		Errors: flows.MFAErrors{
			EngineNotReady:   ErrEngineNotReady,
			UserRequired:     ErrUserRequired,
			AlreadyEnabled:   ErrMFAAlreadyEnabled,
			NotEnabled:       ErrMFANotEnabled,
			InvalidToken:     ErrInvalidVerificationToken,
			InvalidEncoding:  ErrInvalidEncoding,
			WeakSecret:       ErrWeakSecret,
			AttemptsExceeded: ErrMFAAttemptsExceeded,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}

	if store := e.mfaStore; store != nil {
		deps.GetMFA = func(ctx context.Context, userID string) (*flows.MFARecord, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			rec, err := store.GetMFA(ctx, userID)
			if err != nil {
				return nil, e.storeFailure("get_mfa", err)
			}
			return mfaRecordToFlow(rec), nil
		}
		deps.SaveMFA = func(ctx context.Context, rec flows.MFARecord) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			if err := store.SaveMFA(ctx, mfaRecordFromFlow(rec)); err != nil {
				return e.storeFailure("save_mfa", err)
			}
			return nil
		}
		deps.ReplaceBackupCodes = func(ctx context.Context, userID string, digests []string) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			if err := store.ReplaceBackupCodes(ctx, userID, digests); err != nil {
				return e.storeFailure("replace_backup_codes", err)
			}
			return nil
		}
		deps.ConsumeBackupCode = func(ctx context.Context, userID, digest string) (bool, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			ok, err := store.ConsumeBackupCode(ctx, userID, digest)
			if err != nil {
				return false, e.storeFailure("consume_backup_code", err)
			}
			return ok, nil
		}
		deps.UpdateLastUsedCounter = func(ctx context.Context, userID string, counter int64) (bool, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			ok, err := store.UpdateLastUsedCounter(ctx, userID, counter)
			if err != nil {
				return false, e.storeFailure("update_last_used_counter", err)
			}
			return ok, nil
		}
		deps.DisableMFA = func(ctx context.Context, userID string) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			if err := store.DisableMFA(ctx, userID); err != nil {
				return e.storeFailure("disable_mfa", err)
			}
			return nil
		}
	}

	if attempts := e.mfaAttempts; attempts != nil {
		deps.CheckAttempts = func(ctx context.Context, userID string) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			return attempts.Check(ctx, userID)
		}
		deps.RecordAttemptFailure = func(ctx context.Context, userID string) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			return attempts.RecordFailure(ctx, userID)
		}
		deps.ResetAttempts = func(ctx context.Context, userID string) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			return attempts.Reset(ctx, userID)
		}
		deps.IsAttemptsExceeded = func(err error) bool {
			return errors.Is(err, limiters.ErrMFAAttemptsExceeded)
		}
	}

	return deps
}
