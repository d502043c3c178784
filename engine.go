package goGuard

import (
	"context"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/ratelimit"
	"go.uber.org/zap"
)

// Engine is the MFA and client-key core. Build one with [Builder]; it is safe
// for concurrent use afterwards.
//
//	Docs: docs/engine.md
type Engine struct {
	config      Config
	flows       flows.Service
	mfaStore    MFAStore
	keyStore    KeyStore
	limiter     ratelimit.Limiter
	mfaAttempts *limiters.MFAAttemptLimiter
	totp        *otp.Generator
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *zap.Logger
	clock       func() time.Time
	stopSweep   context.CancelFunc
}

// Close stops background work and drains the audit buffer.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stopSweep != nil {
		e.stopSweep()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped returns the number of audit events dropped because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics. The exporters in
// metrics/export read it.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the engine's metric set so the gateway records into the
// same counters. It may be disabled but is never nil on a built engine.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// RateLimiter returns the limiter used for per-key limits. The gateway reuses
// it for per-IP limits when none is configured explicitly.
func (e *Engine) RateLimiter() ratelimit.Limiter {
	if e == nil {
		return nil
	}
	return e.limiter
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Now returns the engine clock. Tests inject a fixed clock through the
// Builder; the gateway uses it for freshness checks.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// storeContext bounds a single store call by Store.Timeout.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// storeFailure logs a collaborator error and returns it wrapped in
// ErrStoreUnavailable.
func (e *Engine) storeFailure(op string, err error) error {
	e.Logger().Warn("store call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
