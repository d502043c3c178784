package goGuard

import (
	"errors"

	"github.com/MrEthical07/goGuard/otp"
)

var (
	// ErrInvalidVerificationToken is returned when a TOTP or backup code does not verify.
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	// ErrInvalidEncoding is returned when a stored or submitted secret is not valid base32.
	ErrInvalidEncoding = otp.ErrInvalidEncoding
	// ErrWeakSecret is returned when an enrollment secret carries less than 20 bytes of entropy.
	ErrWeakSecret = otp.ErrWeakSecret
	// ErrKeyNotFound is returned when no active client key matches the presented key.
	ErrKeyNotFound = errors.New("client key not found")
	// ErrKeyExpired marks a client key whose expiry has passed.
	ErrKeyExpired = errors.New("client key expired")
	// ErrKeyInactive marks a revoked client key.
	ErrKeyInactive = errors.New("client key inactive")
	// ErrKeyDomainNotAllowed is returned when the request origin is outside the key's allowlist.
	ErrKeyDomainNotAllowed = errors.New("client key domain not allowed")
	// ErrKeyRouteNotAllowed is returned when the request path is outside the key's allowed routes.
	ErrKeyRouteNotAllowed = errors.New("client key route not allowed")
	// ErrInvalidKeyOptions is returned by CreateKey for unusable options.
	ErrInvalidKeyOptions = errors.New("invalid client key options")
	// ErrRateLimitExceeded is returned when a sliding-window limit denies a request.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrSessionAbsent is returned when a protected route is requested without a session.
	ErrSessionAbsent = errors.New("session absent")
	// ErrSessionStale is returned when a sensitive route is requested with an old session.
	ErrSessionStale = errors.New("session stale")
	// ErrRoleInsufficient is returned when the session role ranks below the route minimum.
	ErrRoleInsufficient = errors.New("role insufficient")
	// ErrTenantAssociationMissing is returned when a tenant-scoped route is requested without a tenant.
	ErrTenantAssociationMissing = errors.New("tenant association missing")
	// ErrStoreUnavailable is returned when a persistence or session collaborator fails or times out.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when a required dependency was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrMFAAlreadyEnabled is returned by BeginEnrollment for users with MFA on.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnabled is returned by operations that need an enabled MFA record.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAAttemptsExceeded is returned while a user is throttled after repeated failures.
	ErrMFAAttemptsExceeded = errors.New("mfa attempts exceeded")
	// ErrUserRequired is returned when an operation is called without a user id.
	ErrUserRequired = errors.New("user id required")
	// ErrTenantRequired is returned when a key operation is called without a tenant id.
	ErrTenantRequired = errors.New("tenant id required")
)
