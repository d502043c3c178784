package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCachingResolverMemoizesHits(t *testing.T) {
	calls := 0
	inner := ResolverFunc(func(context.Context, *http.Request) (*Descriptor, error) {
		calls++
		return testDescriptor(), nil
	})
	c := NewCachingResolver(inner, BearerKey, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	first, err := c.Resolve(context.Background(), req)
	if err != nil || first == nil {
		t.Fatalf("first resolve: (%v, %v)", first, err)
	}
	first.UserID = "mutated"

	second, err := c.Resolve(context.Background(), req)
	if err != nil || second == nil {
		t.Fatalf("second resolve: (%v, %v)", second, err)
	}
	if calls != 1 {
		t.Fatalf("expected one inner call, got %d", calls)
	}
	if second.UserID != "u-1" {
		t.Fatalf("cached descriptor was mutated through a returned copy: %q", second.UserID)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", c.Len())
	}

	c.Invalidate("tok-1")
	if _, err := c.Resolve(context.Background(), req); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected invalidate to force an inner call, got %d", calls)
	}
}

func TestCachingResolverSkipsMissesAndErrors(t *testing.T) {
	boom := errors.New("boom")
	var result *Descriptor
	var failure error
	calls := 0
	inner := ResolverFunc(func(context.Context, *http.Request) (*Descriptor, error) {
		calls++
		return result, failure
	})
	c := NewCachingResolver(inner, CookieKey("sid"), time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "abc"})

	if d, err := c.Resolve(context.Background(), req); d != nil || err != nil {
		t.Fatalf("expected miss, got (%v, %v)", d, err)
	}
	failure = boom
	if _, err := c.Resolve(context.Background(), req); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if calls != 2 || c.Len() != 0 {
		t.Fatalf("expected nothing cached, calls=%d len=%d", calls, c.Len())
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/", nil)
	failure = nil
	result = testDescriptor()
	if _, err := c.Resolve(context.Background(), anonymous); err != nil {
		t.Fatalf("resolve without credential: %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("requests without a credential must bypass the cache")
	}
}
