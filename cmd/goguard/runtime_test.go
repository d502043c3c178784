package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/MrEthical07/goGuard/session"
)

const testConfig = `
app:
  env: development
log:
  level: error
session:
  kind: jwt
  cache_ttl: 10s
  jwt:
    method: hs256
    secret: 0123456789abcdef0123456789abcdef
    issuer: goguard-test
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestOpenRuntimeMemory(t *testing.T) {
	flags := &globalFlags{configPath: writeConfig(t, testConfig)}
	rt, err := openRuntime(context.Background(), flags)
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()

	if rt.redis != nil {
		t.Fatalf("memory driver without --dev should not open redis")
	}
	created, err := rt.engine.CreateKey(context.Background(), "t-1", "cli", keyOptsForTest())
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	keys, err := rt.engine.ListKeys(context.Background(), "t-1")
	if err != nil || len(keys) != 1 || keys[0].ID != created.ID {
		t.Fatalf("ListKeys = %v, %v", keys, err)
	}
}

func TestOpenRuntimeDevUsesRedisLimiter(t *testing.T) {
	flags := &globalFlags{configPath: writeConfig(t, testConfig), dev: true}
	rt, err := openRuntime(context.Background(), flags)
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()

	if rt.redis == nil {
		t.Fatalf("--dev should provide a redis client")
	}
	if _, ok := rt.engine.RateLimiter().(*ratelimit.RedisSlidingWindow); !ok {
		t.Fatalf("limiter = %T, want redis sliding window", rt.engine.RateLimiter())
	}
	if !rt.engine.SecurityReport().MFAThrottleActive {
		t.Fatalf("MFA throttle should be active with redis")
	}
}

func TestNewResolverCachesJWT(t *testing.T) {
	flags := &globalFlags{configPath: writeConfig(t, testConfig)}
	rt, err := openRuntime(context.Background(), flags)
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()

	resolver, err := newResolver(rt)
	if err != nil {
		t.Fatalf("newResolver: %v", err)
	}
	if _, ok := resolver.(*session.CachingResolver); !ok {
		t.Fatalf("resolver = %T, want caching wrapper", resolver)
	}

	issuer, err := session.NewJWTResolver(session.JWTConfig{
		SigningMethod: session.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goguard-test",
	})
	if err != nil {
		t.Fatalf("NewJWTResolver: %v", err)
	}
	token, err := issuer.Issue(session.Descriptor{
		UserID:   "u-1",
		TenantID: "t-1",
		Role:     permission.RoleAdmin,
		IssuedAt: time.Now(),
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	d, err := resolver.Resolve(context.Background(), req)
	if err != nil || d == nil {
		t.Fatalf("Resolve = %v, %v", d, err)
	}
	if d.UserID != "u-1" || d.Role != permission.RoleAdmin {
		t.Fatalf("descriptor = %+v", d)
	}
}

func TestOpenRuntimeRejectsInvalidConfig(t *testing.T) {
	flags := &globalFlags{configPath: writeConfig(t, "storage:\n  driver: sqlite\n")}
	if _, err := openRuntime(context.Background(), flags); err == nil {
		t.Fatalf("expected config error")
	}
}

func keyOptsForTest() goGuard.KeyOptions {
	return goGuard.KeyOptions{Domains: []string{"app.example.com"}}
}
