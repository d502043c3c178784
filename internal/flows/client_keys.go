package flows

import (
	"context"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	ClientKeyPrefixTest = "ck_test_"
	ClientKeyPrefixLive = "ck_live_"

	// ClientKeyRandomBytes is the entropy behind every key; rendered as 64 hex chars.
	ClientKeyRandomBytes = 32

	ClientKeyRateClass  = "client_key"
	ClientKeyRateWindow = time.Minute
)

var clientKeyPattern = regexp.MustCompile(`^(ck_test_|ck_live_)[0-9a-f]{64}$`)

// IsClientKeyFormat reports whether s has a known prefix followed by 64
// lowercase hex characters.
func IsClientKeyFormat(s string) bool {
	return clientKeyPattern.MatchString(s)
}

type ClientKeyRecord struct {
	ID                 string
	TenantID           string
	Name               string
	Prefix             string
	Hash               string
	Domains            []string
	AllowedRoutes      []string
	RateLimitPerMinute int
	Active             bool
	ExpiresAt          time.Time
	UsageCount         int64
	LastUsedAt         time.Time
	CreatedAt          time.Time
}

type ClientKeyCreateRequest struct {
	TenantID           string
	Name               string
	Environment        string
	Domains            []string
	AllowedRoutes      []string
	RateLimitPerMinute int
	ExpiresAt          time.Time
}

type ClientKeyCreated struct {
	Plaintext string
	Record    ClientKeyRecord
}

type ClientKeyRateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type ClientKeyAuthorization struct {
	Record   ClientKeyRecord
	Decision ClientKeyRateDecision
}

type ClientKeyMetrics struct {
	Created          int
	Revoked          int
	Verified         int
	Malformed        int
	NotFound         int
	Inactive         int
	Expired          int
	DomainRejected   int
	RouteRejected    int
	RateLimited      int
	StoreUnavailable int
	VerifyLatency    int
}

type ClientKeyEvents struct {
	Created        string
	Revoked        string
	VerifyFailed   string
	DomainRejected string
	RouteRejected  string
	RateLimited    string
}

type ClientKeyErrors struct {
	EngineNotReady   error
	TenantRequired   error
	InvalidOptions   error
	NotFound         error
	Expired          error
	Inactive         error
	DomainNotAllowed error
	RouteNotAllowed  error
	RateLimited      error
	StoreUnavailable error
}

type ClientKeyDeps struct {
	DefaultRateLimit int

	Now         func() time.Time
	NewID       func() string
	RandomBytes func(int) ([]byte, error)
	HashKey     func(string) string

	InsertKey      func(context.Context, ClientKeyRecord) error
	GetKeyByHash   func(context.Context, string) (*ClientKeyRecord, error)
	RecordKeyUsage func(context.Context, string, time.Time) (*ClientKeyRecord, error)
	DeactivateKey  func(context.Context, string, string) (bool, error)
	ListKeys       func(context.Context, string) ([]ClientKeyRecord, error)

	CheckRateLimit func(context.Context, string, string, int, time.Duration) (ClientKeyRateDecision, error)

	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)
	EmitAudit      func(context.Context, string, bool, string, string, string, error, func() map[string]string)

	Metrics ClientKeyMetrics
	Events  ClientKeyEvents
	Errors  ClientKeyErrors
}

func RunCreateClientKey(ctx context.Context, req ClientKeyCreateRequest, deps ClientKeyDeps) (*ClientKeyCreated, error) {
	normalizeClientKeyDeps(&deps)

	if deps.InsertKey == nil || deps.NewID == nil || deps.RandomBytes == nil || deps.HashKey == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, deps.Errors.TenantRequired
	}

	now := deps.Now()
	prefix, domains, routes, limit, err := normalizeClientKeyRequest(req, now, deps.DefaultRateLimit)
	if err != nil {
		return nil, joinDetail(deps.Errors.InvalidOptions, err.Error())
	}

	raw, err := deps.RandomBytes(ClientKeyRandomBytes)
	if err != nil {
		return nil, err
	}
	plaintext := prefix + hex.EncodeToString(raw)

	rec := ClientKeyRecord{
		ID:                 deps.NewID(),
		TenantID:           req.TenantID,
		Name:               strings.TrimSpace(req.Name),
		Prefix:             prefix,
		Hash:               deps.HashKey(plaintext),
		Domains:            domains,
		AllowedRoutes:      routes,
		RateLimitPerMinute: limit,
		Active:             true,
		ExpiresAt:          req.ExpiresAt,
		CreatedAt:          now,
	}
	if err := deps.InsertKey(ctx, rec); err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}

	deps.MetricInc(deps.Metrics.Created)
	deps.EmitAudit(ctx, deps.Events.Created, true, "", rec.TenantID, "", nil, func() map[string]string {
		return map[string]string{
			"key_id": rec.ID,
			"prefix": rec.Prefix,
			"limit":  strconv.Itoa(rec.RateLimitPerMinute),
		}
	})
	return &ClientKeyCreated{Plaintext: plaintext, Record: rec}, nil
}

// ClientKeyVerification is the outcome of RunVerifyClientKey. Record is nil when
// the key did not verify and Reason then holds the matching sentinel.
type ClientKeyVerification struct {
	Record *ClientKeyRecord
	Reason error
}

// RunVerifyClientKey resolves plaintext to an active, unexpired record and
// counts the use. Only collaborator failures return an error.
func RunVerifyClientKey(ctx context.Context, plaintext string, deps ClientKeyDeps) (ClientKeyVerification, error) {
	normalizeClientKeyDeps(&deps)

	if deps.GetKeyByHash == nil || deps.RecordKeyUsage == nil || deps.HashKey == nil {
		return ClientKeyVerification{}, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Metrics.VerifyLatency, deps.Now().Sub(start))
	}()

	if !IsClientKeyFormat(plaintext) {
		deps.MetricInc(deps.Metrics.Malformed)
		deps.EmitAudit(ctx, deps.Events.VerifyFailed, false, "", "", "", deps.Errors.NotFound, reasonMeta("malformed", ""))
		return ClientKeyVerification{Reason: deps.Errors.NotFound}, nil
	}

	found, err := deps.GetKeyByHash(ctx, deps.HashKey(plaintext))
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return ClientKeyVerification{}, deps.Errors.StoreUnavailable
	}
	if found == nil {
		deps.MetricInc(deps.Metrics.NotFound)
		deps.EmitAudit(ctx, deps.Events.VerifyFailed, false, "", "", "", deps.Errors.NotFound, reasonMeta("not_found", ""))
		return ClientKeyVerification{Reason: deps.Errors.NotFound}, nil
	}
	if !found.Active {
		deps.MetricInc(deps.Metrics.Inactive)
		deps.EmitAudit(ctx, deps.Events.VerifyFailed, false, "", found.TenantID, "", deps.Errors.Inactive, reasonMeta("inactive", found.ID))
		return ClientKeyVerification{Reason: deps.Errors.Inactive}, nil
	}
	now := deps.Now()
	if !found.ExpiresAt.IsZero() && !now.Before(found.ExpiresAt) {
		deps.MetricInc(deps.Metrics.Expired)
		deps.EmitAudit(ctx, deps.Events.VerifyFailed, false, "", found.TenantID, "", deps.Errors.Expired, reasonMeta("expired", found.ID))
		return ClientKeyVerification{Reason: deps.Errors.Expired}, nil
	}

	updated, err := deps.RecordKeyUsage(ctx, found.ID, now)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return ClientKeyVerification{}, deps.Errors.StoreUnavailable
	}
	if updated == nil {
		// revoked between lookup and usage update
		deps.MetricInc(deps.Metrics.Inactive)
		deps.EmitAudit(ctx, deps.Events.VerifyFailed, false, "", found.TenantID, "", deps.Errors.Inactive, reasonMeta("inactive", found.ID))
		return ClientKeyVerification{Reason: deps.Errors.Inactive}, nil
	}

	deps.MetricInc(deps.Metrics.Verified)
	return ClientKeyVerification{Record: updated}, nil
}

func RunRevokeClientKey(ctx context.Context, keyID, tenantID string, deps ClientKeyDeps) (bool, error) {
	normalizeClientKeyDeps(&deps)

	if deps.DeactivateKey == nil {
		return false, deps.Errors.EngineNotReady
	}
	if tenantID == "" {
		return false, deps.Errors.TenantRequired
	}
	if keyID == "" {
		return false, nil
	}

	ok, err := deps.DeactivateKey(ctx, keyID, tenantID)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return false, deps.Errors.StoreUnavailable
	}
	if ok {
		deps.MetricInc(deps.Metrics.Revoked)
		deps.EmitAudit(ctx, deps.Events.Revoked, true, "", tenantID, "", nil, func() map[string]string {
			return map[string]string{"key_id": keyID}
		})
	}
	return ok, nil
}

func RunListClientKeys(ctx context.Context, tenantID string, deps ClientKeyDeps) ([]ClientKeyRecord, error) {
	normalizeClientKeyDeps(&deps)

	if deps.ListKeys == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if tenantID == "" {
		return nil, deps.Errors.TenantRequired
	}
	keys, err := deps.ListKeys(ctx, tenantID)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}
	for i := range keys {
		keys[i].Hash = ""
	}
	return keys, nil
}

// RunAuthorizeClientKey verifies plaintext and then applies the key's domain
// allowlist, route allowlist and per-minute limit in that order. On a rate
// limit denial the returned authorization carries the decision.
func RunAuthorizeClientKey(ctx context.Context, plaintext, origin, path string, deps ClientKeyDeps) (*ClientKeyAuthorization, error) {
	normalizeClientKeyDeps(&deps)

	if deps.CheckRateLimit == nil {
		return nil, deps.Errors.EngineNotReady
	}

	verified, err := RunVerifyClientKey(ctx, plaintext, deps)
	if err != nil {
		return nil, err
	}
	rec := verified.Record
	if rec == nil {
		return nil, deps.Errors.NotFound
	}

	if !OriginAllowed(rec.Domains, origin) {
		deps.MetricInc(deps.Metrics.DomainRejected)
		deps.EmitAudit(ctx, deps.Events.DomainRejected, false, "", rec.TenantID, "", deps.Errors.DomainNotAllowed, func() map[string]string {
			return map[string]string{"key_id": rec.ID, "origin": origin}
		})
		return nil, deps.Errors.DomainNotAllowed
	}
	if !RouteAllowed(rec.AllowedRoutes, path) {
		deps.MetricInc(deps.Metrics.RouteRejected)
		deps.EmitAudit(ctx, deps.Events.RouteRejected, false, "", rec.TenantID, "", deps.Errors.RouteNotAllowed, func() map[string]string {
			return map[string]string{"key_id": rec.ID, "path": path}
		})
		return nil, deps.Errors.RouteNotAllowed
	}

	limit := rec.RateLimitPerMinute
	if limit <= 0 {
		limit = deps.DefaultRateLimit
	}
	decision, err := deps.CheckRateLimit(ctx, rec.ID, ClientKeyRateClass, limit, ClientKeyRateWindow)
	if err != nil {
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		return nil, deps.Errors.StoreUnavailable
	}
	out := &ClientKeyAuthorization{Record: *rec, Decision: decision}
	if !decision.Allowed {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", rec.TenantID, "", deps.Errors.RateLimited, func() map[string]string {
			return map[string]string{
				"key_id":      rec.ID,
				"limit":       strconv.Itoa(limit),
				"retry_after": decision.RetryAfter.String(),
			}
		})
		return out, deps.Errors.RateLimited
	}
	return out, nil
}

// OriginAllowed matches the host of origin against domains. Entries are exact
// hosts or "*.example.com" wildcards covering subdomains only. An empty list
// allows every origin; a non-empty list rejects requests without one.
func OriginAllowed(domains []string, origin string) bool {
	if len(domains) == 0 {
		return true
	}
	host := originHost(origin)
	if host == "" {
		return false
	}
	for _, d := range domains {
		if suffix, ok := strings.CutPrefix(d, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == d {
			return true
		}
	}
	return false
}

// RouteAllowed reports whether path falls under one of the route prefixes.
// A prefix matches itself and anything below it on a segment boundary.
func RouteAllowed(routes []string, path string) bool {
	if len(routes) == 0 {
		return true
	}
	for _, r := range routes {
		if r == "/" || path == r || strings.HasPrefix(path, strings.TrimSuffix(r, "/")+"/") {
			return true
		}
	}
	return false
}

func originHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return ""
	}
	if strings.Contains(origin, "://") {
		u, err := url.Parse(origin)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	if i := strings.IndexByte(origin, ':'); i >= 0 {
		origin = origin[:i]
	}
	return strings.ToLower(origin)
}

func normalizeClientKeyRequest(req ClientKeyCreateRequest, now time.Time, defaultLimit int) (string, []string, []string, int, error) {
	var prefix string
	switch strings.ToLower(strings.TrimSpace(req.Environment)) {
	case "", "test":
		prefix = ClientKeyPrefixTest
	case "live":
		prefix = ClientKeyPrefixLive
	default:
		return "", nil, nil, 0, errorString("environment must be test or live")
	}
	if strings.TrimSpace(req.Name) == "" {
		return "", nil, nil, 0, errorString("name is required")
	}
	if req.RateLimitPerMinute < 0 {
		return "", nil, nil, 0, errorString("rate limit must be >= 0")
	}
	limit := req.RateLimitPerMinute
	if limit == 0 {
		limit = defaultLimit
	}
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(now) {
		return "", nil, nil, 0, errorString("expiry must be in the future")
	}

	domains := make([]string, 0, len(req.Domains))
	for _, d := range req.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || strings.ContainsAny(d, "/ ") || (strings.Contains(d, "*") && !strings.HasPrefix(d, "*.")) {
			return "", nil, nil, 0, errorString("invalid domain " + strconv.Quote(d))
		}
		domains = append(domains, d)
	}
	routes := make([]string, 0, len(req.AllowedRoutes))
	for _, r := range req.AllowedRoutes {
		r = strings.TrimSpace(r)
		if !strings.HasPrefix(r, "/") {
			return "", nil, nil, 0, errorString("route " + strconv.Quote(r) + " must start with /")
		}
		routes = append(routes, r)
	}
	return prefix, domains, routes, limit, nil
}

func reasonMeta(reason, keyID string) func() map[string]string {
	return func() map[string]string {
		meta := map[string]string{"reason": reason}
		if keyID != "" {
			meta["key_id"] = keyID
		}
		return meta
	}
}

func normalizeClientKeyDeps(deps *ClientKeyDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultRateLimit <= 0 {
		deps.DefaultRateLimit = 60
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
}
