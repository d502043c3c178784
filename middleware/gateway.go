package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

const (
	auditEventRateLimited      = "gateway_rate_limited"
	auditEventSessionAbsent    = "gateway_session_absent"
	auditEventTenantMissing    = "gateway_tenant_missing"
	auditEventSessionStale     = "gateway_session_stale"
	auditEventRoleInsufficient = "gateway_role_insufficient"
	auditEventUnavailable      = "gateway_unavailable"
)

type sessionContextKey struct{}

// SessionFromContext returns the descriptor the gateway resolved for this
// request. It is absent on anonymous requests.
func SessionFromContext(ctx context.Context) (*session.Descriptor, bool) {
	d, ok := ctx.Value(sessionContextKey{}).(*session.Descriptor)
	return d, ok && d != nil
}

// Gateway runs every inbound request through rate limiting, session
// resolution and the route gates of its [GatewayConfig].
//
//	Docs: docs/gateway.md
type Gateway struct {
	engine   *goGuard.Engine
	resolver session.Resolver
	cfg      GatewayConfig
	limiter  ratelimit.Limiter
	logger   *zap.Logger
	now      func() time.Time
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithLimiter overrides the engine's limiter for per-IP route limits.
func WithLimiter(l ratelimit.Limiter) GatewayOption {
	return func(g *Gateway) { g.limiter = l }
}

// WithLogger sets the gateway logger. Defaults to the engine logger.
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithClock overrides the clock used for freshness checks. Defaults to the
// engine clock.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// NewGateway validates cfg and binds it to engine and resolver. The engine
// supplies the audit sink, metrics and, unless overridden, the rate limiter.
func NewGateway(engine *goGuard.Engine, resolver session.Resolver, cfg GatewayConfig, opts ...GatewayOption) (*Gateway, error) {
	if engine == nil {
		return nil, errors.New("gateway: nil engine")
	}
	if resolver == nil {
		return nil, errors.New("gateway: nil session resolver")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway config: %w", err)
	}

	g := &Gateway{
		engine:   engine,
		resolver: resolver,
		cfg:      cloneGatewayConfig(cfg),
		limiter:  engine.RateLimiter(),
		logger:   engine.Logger(),
		now:      engine.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	g.logger = g.logger.Named("gateway")
	if g.limiter == nil && len(g.cfg.RateRules) > 0 {
		return nil, errors.New("gateway: rate rules configured without a limiter")
	}
	return g, nil
}

// denial describes one short-circuit response.
type denial struct {
	status   int
	code     string
	event    string
	err      error
	metric   goGuard.MetricID
	location string
	metadata map[string]string
}

// Middleware wraps next with the gateway.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			g.engine.Metrics().Observe(goGuard.MetricGatewayLatency, time.Since(start))
		}()

		setSecurityHeaders(w.Header())

		ip := clientIP(r, g.cfg.TrustForwardedFor)
		path := r.URL.Path
		ctx := goGuard.WithRequestPath(goGuard.WithClientIP(r.Context(), ip), path)
		r = r.Clone(ctx)
		stripContextHeaders(r.Header)

		rc := g.cfg.classify(path)

		remaining := ""
		if rc.rate != nil {
			identity := ip
			if identity == "" {
				identity = "unknown"
			}
			d, err := g.checkRate(ctx, identity, rc.rate)
			if err != nil {
				g.logger.Warn("rate limiter failed", zap.String("path", path), zap.Error(err))
				g.deny(w, r, rc, nil, g.unavailable(err))
				return
			}
			if !d.Allowed {
				setRetryAfter(w.Header(), d.RetryAfterSeconds())
				g.deny(w, r, rc, nil, denial{
					status: http.StatusTooManyRequests,
					code:   "rate_limited",
					event:  auditEventRateLimited,
					err:    goGuard.ErrRateLimitExceeded,
					metric: goGuard.MetricGatewayRateLimited,
					metadata: map[string]string{
						"class":       rc.rate.Class,
						"retry_after": strconv.Itoa(d.RetryAfterSeconds()),
					},
				})
				return
			}
			remaining = strconv.Itoa(d.Remaining)
			w.Header().Set(HeaderRateLimitRemaining, remaining)
		}

		desc, err := g.resolve(ctx, r)
		if err != nil {
			if rc.protected {
				g.deny(w, r, rc, nil, g.unavailable(err))
				return
			}
			g.logger.Warn("session resolve failed, continuing anonymous", zap.String("path", path), zap.Error(err))
			desc = nil
		}

		if dn, denied := g.gate(r, rc, desc); denied {
			g.deny(w, r, rc, desc, dn)
			return
		}

		if rc.publicOnly && desc.HasTenant() {
			g.engine.Metrics().Inc(goGuard.MetricGatewayPublicOnlyRedirect)
			http.Redirect(w, r, g.cfg.LandingPath, http.StatusSeeOther)
			return
		}

		r.Header.Set(HeaderClientIP, ip)
		if remaining != "" {
			r.Header.Set(HeaderRateLimitRemaining, remaining)
		}
		if desc != nil {
			r.Header.Set(HeaderUserID, desc.UserID)
			r.Header.Set(HeaderUserEmail, desc.Email)
			r.Header.Set(HeaderTenantID, desc.TenantID)
			r.Header.Set(HeaderTenantName, desc.TenantName)
			r.Header.Set(HeaderUserRole, desc.Role.String())
			ctx = context.WithValue(goGuard.WithTenantID(ctx, desc.TenantID), sessionContextKey{}, desc)
			r = r.WithContext(ctx)
		}

		g.engine.Metrics().Inc(goGuard.MetricGatewayAllowed)
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) checkRate(ctx context.Context, identity string, rule *RateRule) (ratelimit.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.LimiterTimeout)
	defer cancel()
	return g.limiter.Check(ctx, identity, rule.Class, rule.Limit, rule.Window)
}

func (g *Gateway) resolve(ctx context.Context, r *http.Request) (*session.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ResolveTimeout)
	defer cancel()
	return g.resolver.Resolve(ctx, r)
}

// gate applies the session, tenant, freshness and role checks in that order.
func (g *Gateway) gate(r *http.Request, rc routeClass, desc *session.Descriptor) (denial, bool) {
	if !rc.protected {
		return denial{}, false
	}

	if desc == nil {
		return denial{
			status:   http.StatusUnauthorized,
			code:     "session_absent",
			event:    auditEventSessionAbsent,
			err:      goGuard.ErrSessionAbsent,
			metric:   goGuard.MetricGatewaySessionAbsent,
			location: redirectTarget(g.cfg.LoginPath, r),
		}, true
	}

	if rc.tenantRequired && !desc.HasTenant() {
		return denial{
			status:   http.StatusConflict,
			code:     "tenant_association_missing",
			event:    auditEventTenantMissing,
			err:      goGuard.ErrTenantAssociationMissing,
			metric:   goGuard.MetricGatewayTenantMissing,
			location: g.cfg.OnboardingPath,
		}, true
	}

	if rc.sensitive {
		now := g.now()
		if desc.IssuedAt.IsZero() || desc.Age(now) > g.cfg.FreshnessWindow {
			return denial{
				status:   http.StatusUnauthorized,
				code:     "session_stale",
				event:    auditEventSessionStale,
				err:      goGuard.ErrSessionStale,
				metric:   goGuard.MetricGatewaySessionStale,
				location: redirectTarget(g.cfg.LoginPath, r, "reason", "session_stale"),
				metadata: map[string]string{
					"session_age": desc.Age(now).Truncate(time.Second).String(),
				},
			}, true
		}
	}

	if rc.role != nil && !desc.Role.AtLeast(rc.role.MinRole) {
		return denial{
			status:   http.StatusForbidden,
			code:     "role_insufficient",
			event:    auditEventRoleInsufficient,
			err:      goGuard.ErrRoleInsufficient,
			metric:   goGuard.MetricGatewayRoleInsufficient,
			location: g.cfg.UnauthorizedPath,
			metadata: map[string]string{
				"role":          desc.Role.String(),
				"required_role": rc.role.MinRole.String(),
			},
		}, true
	}

	return denial{}, false
}

func (g *Gateway) unavailable(err error) denial {
	return denial{
		status:   http.StatusServiceUnavailable,
		code:     "store_unavailable",
		event:    auditEventUnavailable,
		err:      fmt.Errorf("%w: %v", goGuard.ErrStoreUnavailable, err),
		metric:   goGuard.MetricStoreUnavailable,
		metadata: map[string]string{"cause": err.Error()},
	}
}

// deny records exactly one audit event and writes the response. Redirects
// are only used for browser routes; API routes, rate limits and outages get
// JSON.
func (g *Gateway) deny(w http.ResponseWriter, r *http.Request, rc routeClass, desc *session.Descriptor, d denial) {
	g.engine.Metrics().Inc(d.metric)

	metadata := d.metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["method"] = r.Method

	event := goGuard.AuditEvent{
		EventType: d.event,
		Success:   false,
		Error:     string(goGuard.AuditCode(d.err)),
		Metadata:  metadata,
	}
	if desc != nil {
		event.UserID = desc.UserID
		event.TenantID = desc.TenantID
	}
	g.engine.EmitAudit(r.Context(), event)

	g.logger.Debug("request denied",
		zap.String("path", r.URL.Path),
		zap.String("reason", d.code),
		zap.String("ip", goGuard.ClientIPFromContext(r.Context())),
	)

	if d.location != "" && !rc.api {
		http.Redirect(w, r, d.location, http.StatusSeeOther)
		return
	}
	writeJSONError(w, d.status, d.code, http.StatusText(d.status))
}
