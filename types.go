package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/ratelimit"
)

// MFAState is the per-user position in the MFA lifecycle.
//
//	NotEnrolled -> PendingVerification -> Enabled -> Disabled
//
// PendingVerification is held by the caller between [Engine.BeginEnrollment] and
// [Engine.ConfirmEnrollment]; nothing is persisted for it.
type MFAState uint8

const (
	MFANotEnrolled MFAState = iota
	MFAPendingVerification
	MFAEnabled
	MFADisabled
)

func (s MFAState) String() string {
	switch s {
	case MFANotEnrolled:
		return "not_enrolled"
	case MFAPendingVerification:
		return "pending_verification"
	case MFAEnabled:
		return "enabled"
	case MFADisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MFARecord is the persisted MFA state of one user.
//
// Secret is the base32 TOTP seed. Store adapters are responsible for sealing it
// at rest. BackupCodes holds SHA-256 digests, never plaintext codes.
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

// MFAStore persists MFA records. GetMFA returns (nil, nil) for unknown users.
//
// ConsumeBackupCode must remove the digest atomically and report whether this
// call removed it. UpdateLastUsedCounter must only move the counter forward and
// report whether it did.
//
//	Docs: docs/stores.md
type MFAStore interface {
	GetMFA(ctx context.Context, userID string) (*MFARecord, error)
	SaveMFA(ctx context.Context, record MFARecord) error
	ReplaceBackupCodes(ctx context.Context, userID string, digests []string) error
	ConsumeBackupCode(ctx context.Context, userID, digest string) (bool, error)
	UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) (bool, error)
	DisableMFA(ctx context.Context, userID string) error
}

// Enrollment is returned by BeginEnrollment. The secret is shown to the user
// once and must be handed back to ConfirmEnrollment.
type Enrollment struct {
	UserID          string
	Secret          string
	ProvisioningURI string
	State           MFAState
}

// EnrollmentResult carries the plaintext backup codes. They are never
// retrievable again.
type EnrollmentResult struct {
	BackupCodes []string
	EnabledAt   time.Time
}

// MFAStatusInfo describes a user's MFA position without exposing the secret.
type MFAStatusInfo struct {
	State                MFAState
	EnrolledAt           time.Time
	BackupCodesRemaining int
}

// KeyEnvironment selects the client key prefix.
type KeyEnvironment string

const (
	KeyEnvironmentTest KeyEnvironment = "test"
	KeyEnvironmentLive KeyEnvironment = "live"
)

// KeyRecord is the stored form of a client API key. Hash is the hex SHA-256
// (or HMAC-SHA256 when a pepper is configured) of the plaintext key.
type KeyRecord struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Name               string    `json:"name"`
	Prefix             string    `json:"prefix"`
	Hash               string    `json:"-"`
	Domains            []string  `json:"domains,omitempty"`
	AllowedRoutes      []string  `json:"allowed_routes,omitempty"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	Active             bool      `json:"active"`
	ExpiresAt          time.Time `json:"expires_at,omitzero"`
	UsageCount         int64     `json:"usage_count"`
	LastUsedAt         time.Time `json:"last_used_at,omitzero"`
	CreatedAt          time.Time `json:"created_at"`
}

// Expired reports whether the key has an expiry at or before now.
func (k KeyRecord) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// KeyOptions configures CreateKey. A zero RateLimitPerMinute takes the
// configured default; empty Domains or AllowedRoutes allow everything.
type KeyOptions struct {
	Environment        KeyEnvironment
	Domains            []string
	RateLimitPerMinute int
	AllowedRoutes      []string
	ExpiresAt          time.Time
}

// CreatedKey is returned once by CreateKey. PlaintextKey is not stored.
type CreatedKey struct {
	ID           string
	PlaintextKey string
	Record       KeyRecord
}

// KeyStore persists client keys. GetKeyByHash returns (nil, nil) when no record
// matches. RecordKeyUsage atomically bumps the usage count of an active key and
// returns the updated record, or (nil, nil) if the key is no longer active.
// DeactivateKey only touches keys owned by tenantID.
//
//	Docs: docs/stores.md
type KeyStore interface {
	InsertKey(ctx context.Context, record KeyRecord) error
	GetKeyByHash(ctx context.Context, hash string) (*KeyRecord, error)
	RecordKeyUsage(ctx context.Context, keyID string, at time.Time) (*KeyRecord, error)
	DeactivateKey(ctx context.Context, keyID, tenantID string) (bool, error)
	ListKeys(ctx context.Context, tenantID string) ([]KeyRecord, error)
}

// KeyRequest is the request context AuthorizeKey checks a key against.
type KeyRequest struct {
	Origin string
	Path   string
}

// KeyAuthorization is the result of AuthorizeKey. On ErrRateLimitExceeded it is
// still returned so callers can read Decision.RetryAfter.
type KeyAuthorization struct {
	Key      KeyRecord
	Decision ratelimit.Decision
}
