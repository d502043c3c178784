package goGuard

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/google/uuid"
)

// IsClientKeyFormat reports whether s looks like a client key: "ck_test_" or
// "ck_live_" followed by 64 lowercase hex characters. It does not touch the
// store.
func IsClientKeyFormat(s string) bool {
	return flows.IsClientKeyFormat(s)
}

// CreateKey describes the createkey operation and its observable behavior.
//
// CreateKey issues a new client key for tenantID. The plaintext is returned
// exactly once in [CreatedKey]; the store only receives its hash. Invalid
// options fail with ErrInvalidKeyOptions.
//
//	Flow: Client key issuance
//	Docs: docs/client_keys.md
func (e *Engine) CreateKey(ctx context.Context, tenantID, name string, opts KeyOptions) (*CreatedKey, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out, err := e.flows.CreateClientKey(ctx, flows.ClientKeyCreateRequest{
		TenantID:           tenantID,
		Name:               name,
		Environment:        string(opts.Environment),
		Domains:            opts.Domains,
		AllowedRoutes:      opts.AllowedRoutes,
		RateLimitPerMinute: opts.RateLimitPerMinute,
		ExpiresAt:          opts.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	rec := keyRecordFromFlow(out.Record)
	rec.Hash = ""
	return &CreatedKey{
		ID:           rec.ID,
		PlaintextKey: out.Plaintext,
		Record:       rec,
	}, nil
}

// VerifyKey describes the verifykey operation and its observable behavior.
//
// VerifyKey resolves plaintext to its active, unexpired record and counts the
// use. Malformed, unknown, revoked and expired keys all yield (nil, nil); the
// reason is recorded in audit and metrics only. Errors are reserved for store
// failures. Domain, route and rate checks belong to [Engine.AuthorizeKey].
//
//	Flow: Client key verification
//	Docs: docs/client_keys.md
func (e *Engine) VerifyKey(ctx context.Context, plaintext string) (*KeyRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res, err := e.flows.VerifyClientKey(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	if res.Record == nil {
		return nil, nil
	}
	rec := keyRecordFromFlow(*res.Record)
	rec.Hash = ""
	return &rec, nil
}

// RevokeKey deactivates keyID if tenantID owns it. It reports false when the
// key does not exist, belongs to another tenant or is already inactive.
func (e *Engine) RevokeKey(ctx context.Context, keyID, tenantID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flows.RevokeClientKey(ctx, keyID, tenantID)
}

// ListKeys returns every key of tenantID, active or not, without hashes.
func (e *Engine) ListKeys(ctx context.Context, tenantID string) ([]KeyRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	keys, err := e.flows.ListClientKeys(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]KeyRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyRecordFromFlow(k))
	}
	return out, nil
}

// AuthorizeKey describes the authorizekey operation and its observable behavior.
//
// AuthorizeKey verifies plaintext and then checks, in order, the key's domain
// allowlist against req.Origin, its route allowlist against req.Path and its
// per-minute limit. Every verification miss is reported as ErrKeyNotFound so
// callers cannot learn key state; the precise reason is audited. On
// ErrRateLimitExceeded the authorization is still returned so callers can set
// Retry-After.
//
//	Flow: Client key authorization
//	Docs: docs/client_keys.md
func (e *Engine) AuthorizeKey(ctx context.Context, plaintext string, req KeyRequest) (*KeyAuthorization, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out, err := e.flows.AuthorizeClientKey(ctx, plaintext, req.Origin, req.Path)
	if out == nil {
		return nil, err
	}
	rec := keyRecordFromFlow(out.Record)
	rec.Hash = ""
	return &KeyAuthorization{
		Key: rec,
		Decision: ratelimit.Decision{
			Allowed:    out.Decision.Allowed,
			Limit:      out.Decision.Limit,
			Remaining:  out.Decision.Remaining,
			RetryAfter: out.Decision.RetryAfter,
		},
	}, err
}

// hashKey returns the stored form of a plaintext key: hex SHA-256, or hex
// HMAC-SHA256 under the configured pepper.
func (e *Engine) hashKey(plaintext string) string {
	if pepper := e.config.ClientKeys.Pepper; pepper != "" {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(plaintext))
		return hex.EncodeToString(mac.Sum(nil))
	}
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func keyRecordToFlow(rec KeyRecord) flows.ClientKeyRecord {
	return flows.ClientKeyRecord{
		ID:                 rec.ID,
		TenantID:           rec.TenantID,
		Name:               rec.Name,
		Prefix:             rec.Prefix,
		Hash:               rec.Hash,
		Domains:            append([]string(nil), rec.Domains...),
		AllowedRoutes:      append([]string(nil), rec.AllowedRoutes...),
		RateLimitPerMinute: rec.RateLimitPerMinute,
		Active:             rec.Active,
		ExpiresAt:          rec.ExpiresAt,
		UsageCount:         rec.UsageCount,
		LastUsedAt:         rec.LastUsedAt,
		CreatedAt:          rec.CreatedAt,
	}
}

func keyRecordFromFlow(rec flows.ClientKeyRecord) KeyRecord {
	return KeyRecord{
		ID:                 rec.ID,
		TenantID:           rec.TenantID,
		Name:               rec.Name,
		Prefix:             rec.Prefix,
		Hash:               rec.Hash,
		Domains:            rec.Domains,
		AllowedRoutes:      rec.AllowedRoutes,
		RateLimitPerMinute: rec.RateLimitPerMinute,
		Active:             rec.Active,
		ExpiresAt:          rec.ExpiresAt,
		UsageCount:         rec.UsageCount,
		LastUsedAt:         rec.LastUsedAt,
		CreatedAt:          rec.CreatedAt,
	}
}

func keyRecordPtrToFlow(rec *KeyRecord) *flows.ClientKeyRecord {
	if rec == nil {
		return nil
	}
	out := keyRecordToFlow(*rec)
	return &out
}

func (e *Engine) clientKeyFlowDeps() flows.ClientKeyDeps {
	deps := flows.ClientKeyDeps{
		DefaultRateLimit: e.config.ClientKeys.DefaultRateLimit,
		Now:              e.now,
		NewID:            uuid.NewString,
		RandomBytes:      randomBytes,
		HashKey:          e.hashKey,
		MetricInc:        func(id int) { e.metricInc(MetricID(id)) },
		ObserveLatency:   func(id int, d time.Duration) { e.metricObserve(MetricID(id), d) },
		EmitAudit:        e.emitAudit,
		Metrics: flows.ClientKeyMetrics{
			Created:          int(MetricKeyCreated),
			Revoked:          int(MetricKeyRevoked),
			Verified:         int(MetricKeyVerified),
			Malformed:        int(MetricKeyMalformed),
			NotFound:         int(MetricKeyNotFound),
			Inactive:         int(MetricKeyInactive),
			Expired:          int(MetricKeyExpired),
			DomainRejected:   int(MetricKeyDomainRejected),
			RouteRejected:    int(MetricKeyRouteRejected),
			RateLimited:      int(MetricKeyRateLimited),
			StoreUnavailable: int(MetricStoreUnavailable),
			VerifyLatency:    int(MetricKeyVerifyLatency),
		},
		Events: flows.ClientKeyEvents{
			Created:        auditEventKeyCreated,
			Revoked:        auditEventKeyRevoked,
			VerifyFailed:   auditEventKeyVerifyFailed,
			DomainRejected: auditEventKeyDomainRejected,
			RouteRejected:  auditEventKeyRouteRejected,
			RateLimited:    auditEventKeyRateLimited,
		},
		Errors: flows.ClientKeyErrors{
			EngineNotReady:   ErrEngineNotReady,
			TenantRequired:   ErrTenantRequired,
			InvalidOptions:   ErrInvalidKeyOptions,
			NotFound:         ErrKeyNotFound,
			Expired:          ErrKeyExpired,
			Inactive:         ErrKeyInactive,
			DomainNotAllowed: ErrKeyDomainNotAllowed,
			RouteNotAllowed:  ErrKeyRouteNotAllowed,
			RateLimited:      ErrRateLimitExceeded,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}

	if store := e.keyStore; store != nil {
		deps.InsertKey = func(ctx context.Context, rec flows.ClientKeyRecord) error {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			if err := store.InsertKey(ctx, keyRecordFromFlow(rec)); err != nil {
				return e.storeFailure("insert_key", err)
			}
			return nil
		}
		deps.GetKeyByHash = func(ctx context.Context, hash string) (*flows.ClientKeyRecord, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			rec, err := store.GetKeyByHash(ctx, hash)
			if err != nil {
				return nil, e.storeFailure("get_key_by_hash", err)
			}
			return keyRecordPtrToFlow(rec), nil
		}
		deps.RecordKeyUsage = func(ctx context.Context, keyID string, at time.Time) (*flows.ClientKeyRecord, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			rec, err := store.RecordKeyUsage(ctx, keyID, at)
			if err != nil {
				return nil, e.storeFailure("record_key_usage", err)
			}
			return keyRecordPtrToFlow(rec), nil
		}
		deps.DeactivateKey = func(ctx context.Context, keyID, tenantID string) (bool, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			ok, err := store.DeactivateKey(ctx, keyID, tenantID)
			if err != nil {
				return false, e.storeFailure("deactivate_key", err)
			}
			return ok, nil
		}
		deps.ListKeys = func(ctx context.Context, tenantID string) ([]flows.ClientKeyRecord, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			keys, err := store.ListKeys(ctx, tenantID)
			if err != nil {
				return nil, e.storeFailure("list_keys", err)
			}
			out := make([]flows.ClientKeyRecord, 0, len(keys))
			for _, k := range keys {
				out = append(out, keyRecordToFlow(k))
			}
			return out, nil
		}
	}

	if limiter := e.limiter; limiter != nil {
		deps.CheckRateLimit = func(ctx context.Context, identity, class string, limit int, window time.Duration) (flows.ClientKeyRateDecision, error) {
			ctx, cancel := e.storeContext(ctx)
			defer cancel()
			d, err := limiter.Check(ctx, identity, class, limit, window)
			if err != nil {
				if errors.Is(err, ratelimit.ErrInvalidPolicy) {
					return flows.ClientKeyRateDecision{}, err
				}
				return flows.ClientKeyRateDecision{}, e.storeFailure("rate_limit", err)
			}
			return flows.ClientKeyRateDecision{
				Allowed:    d.Allowed,
				Limit:      d.Limit,
				Remaining:  d.Remaining,
				RetryAfter: d.RetryAfter,
			}, nil
		}
	}

	return deps
}
