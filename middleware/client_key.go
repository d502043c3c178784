package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

// HeaderClientKey carries a client key when Authorization is not used.
const HeaderClientKey = "X-Client-Key"

type clientKeyContextKey struct{}

// ClientKeyFromContext returns the key record authorized by [RequireClientKey].
func ClientKeyFromContext(ctx context.Context) (*goGuard.KeyRecord, bool) {
	rec, ok := ctx.Value(clientKeyContextKey{}).(*goGuard.KeyRecord)
	return rec, ok && rec != nil
}

// ClientKeyOptions configures [RequireClientKey].
type ClientKeyOptions struct {
	// TrustForwardedFor takes the audited client IP from X-Forwarded-For.
	TrustForwardedFor bool
}

// RequireClientKey authorizes each request with Engine.AuthorizeKey, taking
// the key from "Authorization: Bearer" or X-Client-Key and the origin from
// the Origin header. Unknown keys get 401, domain or route violations 403,
// the per-key limit 429 with Retry-After, and store failures 503.
//
// The engine audits every rejection it decides; only a missing key is
// audited here.
func RequireClientKey(engine *goGuard.Engine, opts ClientKeyOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setSecurityHeaders(w.Header())

			ip := clientIP(r, opts.TrustForwardedFor)
			ctx := goGuard.WithRequestPath(goGuard.WithClientIP(r.Context(), ip), r.URL.Path)
			r = r.Clone(ctx)
			stripContextHeaders(r.Header)

			if engine == nil {
				writeJSONError(w, http.StatusServiceUnavailable, "store_unavailable", "client keys are not configured")
				return
			}

			key, ok := presentedKey(r)
			if !ok {
				engine.EmitAudit(ctx, goGuard.AuditEvent{
					EventType: "client_key_missing",
					Error:     string(goGuard.AuditErrKeyNotFound),
					Metadata:  map[string]string{"method": r.Method},
				})
				w.Header().Set("WWW-Authenticate", `Bearer realm="client-key"`)
				writeJSONError(w, http.StatusUnauthorized, "client_key_required", "a client key is required")
				return
			}

			auth, err := engine.AuthorizeKey(ctx, key, goGuard.KeyRequest{
				Origin: r.Header.Get("Origin"),
				Path:   r.URL.Path,
			})
			if auth != nil {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(auth.Decision.Limit))
				w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(auth.Decision.Remaining))
			}
			if err != nil {
				switch {
				case errors.Is(err, goGuard.ErrRateLimitExceeded):
					seconds := 1
					if auth != nil {
						seconds = auth.Decision.RetryAfterSeconds()
					}
					setRetryAfter(w.Header(), seconds)
					writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "client key rate limit exceeded")
				case errors.Is(err, goGuard.ErrKeyDomainNotAllowed):
					writeJSONError(w, http.StatusForbidden, "domain_not_allowed", "origin is not allowed for this key")
				case errors.Is(err, goGuard.ErrKeyRouteNotAllowed):
					writeJSONError(w, http.StatusForbidden, "route_not_allowed", "route is not allowed for this key")
				case errors.Is(err, goGuard.ErrKeyNotFound):
					w.Header().Set("WWW-Authenticate", `Bearer realm="client-key", error="invalid_token"`)
					writeJSONError(w, http.StatusUnauthorized, "invalid_client_key", "client key is not valid")
				default:
					writeJSONError(w, http.StatusServiceUnavailable, "store_unavailable", "client key verification is unavailable")
				}
				return
			}

			rec := auth.Key
			r.Header.Set(HeaderClientIP, ip)
			r.Header.Set(HeaderTenantID, rec.TenantID)
			r.Header.Set(HeaderClientKeyID, rec.ID)
			r.Header.Set(HeaderRateLimitRemaining, strconv.Itoa(auth.Decision.Remaining))
			ctx = goGuard.WithKeyID(goGuard.WithTenantID(ctx, rec.TenantID), rec.ID)
			ctx = context.WithValue(ctx, clientKeyContextKey{}, &rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func presentedKey(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	if v := r.Header.Get("Authorization"); len(v) > len(bearer) && strings.EqualFold(v[:len(bearer)], bearer) {
		if token := strings.TrimSpace(v[len(bearer):]); token != "" {
			return token, true
		}
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderClientKey)); v != "" {
		return v, true
	}
	return "", false
}
