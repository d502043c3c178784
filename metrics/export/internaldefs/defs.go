package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef binds a counter ID to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram ID to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricMFAEnrollmentStarted, Name: "goguard_mfa_enrollment_started_total", Help: "MFA enrollments started."},
	{ID: goGuard.MetricMFAEnabled, Name: "goguard_mfa_enabled_total", Help: "MFA enrollments confirmed."},
	{ID: goGuard.MetricMFADisabled, Name: "goguard_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: goGuard.MetricMFAVerifySuccess, Name: "goguard_mfa_verify_success_total", Help: "Successful TOTP verifications."},
	{ID: goGuard.MetricMFAVerifyFailure, Name: "goguard_mfa_verify_failure_total", Help: "Failed MFA verifications."},
	{ID: goGuard.MetricMFAReplayAttempt, Name: "goguard_mfa_replay_attempt_total", Help: "Rejected TOTP code replays."},
	{ID: goGuard.MetricMFAAttemptsExceeded, Name: "goguard_mfa_attempts_exceeded_total", Help: "Verifications refused by the attempt throttle."},
	{ID: goGuard.MetricBackupCodeUsed, Name: "goguard_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goGuard.MetricBackupCodeFailed, Name: "goguard_backup_code_failed_total", Help: "Backup-code submissions that did not match."},
	{ID: goGuard.MetricBackupCodeRegenerated, Name: "goguard_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: goGuard.MetricKeyCreated, Name: "goguard_client_key_created_total", Help: "Client keys issued."},
	{ID: goGuard.MetricKeyRevoked, Name: "goguard_client_key_revoked_total", Help: "Client keys revoked."},
	{ID: goGuard.MetricKeyVerified, Name: "goguard_client_key_verified_total", Help: "Successful client key verifications."},
	{ID: goGuard.MetricKeyMalformed, Name: "goguard_client_key_malformed_total", Help: "Client keys rejected by format."},
	{ID: goGuard.MetricKeyNotFound, Name: "goguard_client_key_not_found_total", Help: "Client keys with no matching record."},
	{ID: goGuard.MetricKeyInactive, Name: "goguard_client_key_inactive_total", Help: "Revoked client keys presented."},
	{ID: goGuard.MetricKeyExpired, Name: "goguard_client_key_expired_total", Help: "Expired client keys presented."},
	{ID: goGuard.MetricKeyDomainRejected, Name: "goguard_client_key_domain_rejected_total", Help: "Client key requests from a disallowed origin."},
	{ID: goGuard.MetricKeyRouteRejected, Name: "goguard_client_key_route_rejected_total", Help: "Client key requests to a disallowed route."},
	{ID: goGuard.MetricKeyRateLimited, Name: "goguard_client_key_rate_limited_total", Help: "Client key requests over the per-key limit."},
	{ID: goGuard.MetricGatewayAllowed, Name: "goguard_gateway_allowed_total", Help: "Requests forwarded by the gateway."},
	{ID: goGuard.MetricGatewayRateLimited, Name: "goguard_gateway_rate_limited_total", Help: "Requests denied with 429."},
	{ID: goGuard.MetricGatewaySessionAbsent, Name: "goguard_gateway_session_absent_total", Help: "Protected requests without a session."},
	{ID: goGuard.MetricGatewayTenantMissing, Name: "goguard_gateway_tenant_missing_total", Help: "Requests needing a tenant association."},
	{ID: goGuard.MetricGatewaySessionStale, Name: "goguard_gateway_session_stale_total", Help: "Sensitive requests with a stale session."},
	{ID: goGuard.MetricGatewayRoleInsufficient, Name: "goguard_gateway_role_insufficient_total", Help: "Requests denied by role."},
	{ID: goGuard.MetricGatewayPublicOnlyRedirect, Name: "goguard_gateway_public_only_redirect_total", Help: "Signed-in requests redirected away from public-only pages."},
	{ID: goGuard.MetricStoreUnavailable, Name: "goguard_store_unavailable_total", Help: "Store, limiter or resolver failures."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricGatewayLatency, Name: "goguard_gateway_latency_seconds", Help: "Gateway decision latency."},
	{ID: goGuard.MetricKeyVerifyLatency, Name: "goguard_client_key_verify_latency_seconds", Help: "Client key verification latency."},
}

// AuditDroppedName is the counter for events dropped by the audit dispatcher.
const (
	AuditDroppedName = "goguard_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
