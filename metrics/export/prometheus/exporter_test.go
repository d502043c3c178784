package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goGuard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectorExposesCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricKeyRateLimited: 7,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricGatewayLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(exp))

	expected := `
# HELP goguard_client_key_rate_limited_total Client key requests over the per-key limit.
# TYPE goguard_client_key_rate_limited_total counter
goguard_client_key_rate_limited_total 7
# HELP goguard_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE goguard_audit_dropped_total counter
goguard_audit_dropped_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"goguard_client_key_rate_limited_total", "goguard_audit_dropped_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "goguard_gateway_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		require.Equal(t, uint64(36), h.GetSampleCount())
		require.Equal(t, uint64(1), h.GetBucket()[0].GetCumulativeCount())
		require.Equal(t, 0.005, h.GetBucket()[0].GetUpperBound())
		require.Equal(t, uint64(28), h.GetBucket()[6].GetCumulativeCount())
	}
	require.True(t, found, "gateway latency histogram not gathered")
}

func TestCollectorCountMatchesDefinitions(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: goGuard.MetricsSnapshot{}})
	// counters + histograms + audit dropped
	require.Equal(t, len(exp.counters)+len(exp.histograms)+1, testutil.CollectAndCount(exp))
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{goGuard.MetricGatewayAllowed: 1},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, rec.Body.String(), "goguard_gateway_allowed_total 1")
}

type emptyKeyStore struct{}

func (emptyKeyStore) InsertKey(context.Context, goGuard.KeyRecord) error { return nil }
func (emptyKeyStore) GetKeyByHash(context.Context, string) (*goGuard.KeyRecord, error) {
	return nil, nil
}
func (emptyKeyStore) RecordKeyUsage(context.Context, string, time.Time) (*goGuard.KeyRecord, error) {
	return nil, nil
}
func (emptyKeyStore) DeactivateKey(context.Context, string, string) (bool, error) { return false, nil }
func (emptyKeyStore) ListKeys(context.Context, string) ([]goGuard.KeyRecord, error) {
	return nil, nil
}

func TestCollectorFromEngine(t *testing.T) {
	engine, err := goGuard.New().
		WithKeyStore(emptyKeyStore{}).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	rec, err := engine.VerifyKey(context.Background(), "not-a-key")
	require.NoError(t, err)
	require.Nil(t, rec)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPrometheusExporter(engine)))

	expected := `
# HELP goguard_client_key_malformed_total Client keys rejected by format.
# TYPE goguard_client_key_malformed_total counter
goguard_client_key_malformed_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "goguard_client_key_malformed_total"))
}
