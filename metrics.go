package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics system.
//
//	Docs: docs/metrics.md
type MetricID uint16

const (
	// MetricMFAEnrollmentStarted counts BeginEnrollment calls that produced a secret.
	MetricMFAEnrollmentStarted MetricID = iota
	// MetricMFAEnabled counts confirmed enrollments.
	MetricMFAEnabled
	// MetricMFADisabled counts verified disable requests.
	MetricMFADisabled
	// MetricMFAVerifySuccess counts accepted TOTP codes.
	MetricMFAVerifySuccess
	// MetricMFAVerifyFailure counts rejected MFA tokens.
	MetricMFAVerifyFailure
	// MetricMFAReplayAttempt counts TOTP codes rejected because their counter was already used.
	MetricMFAReplayAttempt
	// MetricMFAAttemptsExceeded counts verifications refused by the attempt throttle.
	MetricMFAAttemptsExceeded
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed counts backup-code shaped tokens that did not match.
	MetricBackupCodeFailed
	// MetricBackupCodeRegenerated counts backup-code set replacements.
	MetricBackupCodeRegenerated
	// MetricKeyCreated counts issued client keys.
	MetricKeyCreated
	// MetricKeyRevoked counts deactivated client keys.
	MetricKeyRevoked
	// MetricKeyVerified counts client keys that verified.
	MetricKeyVerified
	// MetricKeyMalformed counts presented keys that failed the format check.
	MetricKeyMalformed
	// MetricKeyNotFound counts well-formed keys with no stored record.
	MetricKeyNotFound
	// MetricKeyInactive counts presented keys that were revoked.
	MetricKeyInactive
	// MetricKeyExpired counts presented keys past their expiry.
	MetricKeyExpired
	// MetricKeyDomainRejected counts key requests from an origin outside the allowlist.
	MetricKeyDomainRejected
	// MetricKeyRouteRejected counts key requests to a path outside the allowed routes.
	MetricKeyRouteRejected
	// MetricKeyRateLimited counts key requests denied by the per-key limit.
	MetricKeyRateLimited
	// MetricGatewayAllowed counts requests forwarded by the gateway.
	MetricGatewayAllowed
	// MetricGatewayRateLimited counts requests answered with 429.
	MetricGatewayRateLimited
	// MetricGatewaySessionAbsent counts protected requests without a session.
	MetricGatewaySessionAbsent
	// MetricGatewayTenantMissing counts tenant-scoped requests without a tenant.
	MetricGatewayTenantMissing
	// MetricGatewaySessionStale counts sensitive requests with an old session.
	MetricGatewaySessionStale
	// MetricGatewayRoleInsufficient counts requests denied by the role gate.
	MetricGatewayRoleInsufficient
	// MetricGatewayPublicOnlyRedirect counts signed-in requests bounced off public-only routes.
	MetricGatewayPublicOnlyRedirect
	// MetricStoreUnavailable counts operations that failed closed on a collaborator error.
	MetricStoreUnavailable
	// MetricGatewayLatency is the gateway decision latency histogram.
	MetricGatewayLatency
	// MetricKeyVerifyLatency is the client-key verification latency histogram.
	MetricKeyVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and optional latency histograms.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] configured by cfg. When Enabled is false all
// operations are no-ops.
//
//	Docs: docs/metrics.md
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id by one.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram id. Non-histogram ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isHistogram(id) {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when latency is enabled, every histogram.
//
// Snapshot is safe to call concurrently with writers; individual values are
// read atomically but the snapshot as a whole is not a single consistent cut.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(histogramIDs)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range histogramIDs {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

var histogramIDs = [...]MetricID{MetricGatewayLatency, MetricKeyVerifyLatency}

func isHistogram(id MetricID) bool {
	return id == MetricGatewayLatency || id == MetricKeyVerifyLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
