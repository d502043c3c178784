package goGuard

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder defines a public type used by goGuard APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	mfaStore  MFAStore
	keyStore  KeyStore
	limiter   ratelimit.Limiter
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]. It does not mutate shared global state.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// The client backs the MFA attempt throttle and, unless [Builder.WithRateLimiter]
// is used, the distributed sliding-window limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMFAStore sets the persistence used by the MFA operations.
func (b *Builder) WithMFAStore(store MFAStore) *Builder {
	b.mfaStore = store
	return b
}

// WithKeyStore sets the persistence used by the client key operations.
func (b *Builder) WithKeyStore(store KeyStore) *Builder {
	b.keyStore = store
	return b
}

// WithRateLimiter describes the withratelimiter operation and its observable behavior.
//
// An explicit limiter wins over the one derived from Redis or the in-process
// default. The engine does not sweep limiters it did not create.
func (b *Builder) WithRateLimiter(limiter ratelimit.Limiter) *Builder {
	b.limiter = limiter
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// The sink only receives events when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for TOTP windows, expiry and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, requires at least one store, and wires the
// flows. A Builder can only be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.mfaStore == nil && b.keyStore == nil {
		return nil, errors.New("at least one of MFAStore or KeyStore is required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("goguard")

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- TOTP --------
	generator, err := otp.New(otp.Config{
		Issuer:    cfg.TOTP.Issuer,
		Digits:    cfg.TOTP.Digits,
		Period:    cfg.TOTP.Period,
		Window:    cfg.TOTP.Window,
		Algorithm: cfg.TOTP.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		mfaStore: b.mfaStore,
		keyStore: b.keyStore,
		totp:     generator,
		logger:   logger,
		clock:    clock,
	}

	// -------- RATE LIMITING --------
	switch {
	case b.limiter != nil:
		engine.limiter = b.limiter
	case b.redis != nil:
		engine.limiter = ratelimit.NewRedisSlidingWindow(b.redis, cfg.RateLimit.RedisPrefix).WithClock(clock)
	default:
		local := ratelimit.NewSlidingWindow(ratelimit.WithClock(clock))
		engine.limiter = local
		if cfg.RateLimit.SweepInterval > 0 {
			ctx, cancel := context.WithCancel(context.Background())
			engine.stopSweep = cancel
			go func() {
				_ = local.Run(ctx, cfg.RateLimit.SweepInterval)
			}()
		}
	}

	engine.mfaAttempts = limiters.NewMFAAttemptLimiter(b.redis, limiters.MFAAttemptConfig{
		MaxAttempts: cfg.MFA.MaxAttempts,
		Window:      cfg.MFA.AttemptWindow,
	})
	if engine.mfaAttempts == nil && b.mfaStore != nil {
		logger.Warn("mfa attempt throttle disabled: no redis client configured")
	}

	// -------- OBSERVABILITY --------
	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewZapSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Clock:      func() time.Time { return clock().UTC() },
	}, sink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.flows = flows.New(flows.Deps{
		MFA:       engine.mfaFlowDeps(),
		ClientKey: engine.clientKeyFlowDeps(),
	})

	b.built = true

	return engine, nil
}
