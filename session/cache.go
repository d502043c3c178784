package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// KeyFunc extracts the credential that identifies a request's session. An
// empty result bypasses the cache.
type KeyFunc func(r *http.Request) string

// BearerKey uses the Authorization bearer token.
func BearerKey(r *http.Request) string {
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

// CookieKey uses the value of the named cookie.
func CookieKey(name string) KeyFunc {
	return func(r *http.Request) string {
		c, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return c.Value
	}
}

// CachingResolver memoizes sessions found by another resolver for a short TTL.
// Misses and backend errors are never cached.
type CachingResolver struct {
	inner Resolver
	key   KeyFunc
	cache *gocache.Cache
}

// NewCachingResolver wraps inner. ttl must stay well under the freshness
// window so a revoked session does not outlive it for long.
func NewCachingResolver(inner Resolver, key KeyFunc, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		inner: inner,
		key:   key,
		cache: gocache.New(ttl, time.Minute),
	}
}

// Resolve implements [Resolver].
func (c *CachingResolver) Resolve(ctx context.Context, r *http.Request) (*Descriptor, error) {
	credential := c.key(r)
	if credential == "" {
		return c.inner.Resolve(ctx, r)
	}

	k := digest(credential)
	if v, ok := c.cache.Get(k); ok {
		if d, ok := v.(*Descriptor); ok {
			return d.clone(), nil
		}
	}

	d, err := c.inner.Resolve(ctx, r)
	if err != nil || d == nil {
		return d, err
	}
	c.cache.SetDefault(k, d.clone())
	return d, nil
}

// Invalidate drops the cached session for credential.
func (c *CachingResolver) Invalidate(credential string) {
	c.cache.Delete(digest(credential))
}

// Len reports the number of cached sessions.
func (c *CachingResolver) Len() int {
	return c.cache.ItemCount()
}

func digest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
